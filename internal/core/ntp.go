package core

// NTPRequest is the client→server probe. t0 is the client's own send
// timestamp; the server never interprets it beyond echoing it back.
type NTPRequest struct {
	ClientSendMillis int64 `json:"t0"`
	// ReportedRTTMillis lets a client that has already converged its
	// offset report its current RTT estimate so the server can use it
	// for scheduling; zero/absent means "no update".
	ReportedRTTMillis float64 `json:"rtt,omitempty"`
}

// NTPResponse is the server's reply, carrying all four timestamps the
// client needs to run the standard two-way offset computation.
type NTPResponse struct {
	ClientSendMillis  int64 `json:"t0"`
	ServerReceiveMillis int64 `json:"t1"`
	ServerSendMillis  int64 `json:"t2"`
}

// HandleNTPRequest builds the response for req. receiveMillis MUST be
// captured by the caller immediately after reading the frame off the
// wire, before any parsing that could bias the sample — this function
// only does the cheap echo-back, never the timestamping itself.
func HandleNTPRequest(req NTPRequest, receiveMillis int64, sendMillis int64) NTPResponse {
	return NTPResponse{
		ClientSendMillis:    req.ClientSendMillis,
		ServerReceiveMillis: receiveMillis,
		ServerSendMillis:    sendMillis,
	}
}

// NTPBootstrapHz is the probe rate the server answers in full while a
// client is still converging: the per-client NTP token bucket in
// internal/app refills at this rate. NTPSteadyIntervalMillis is the
// probe interval of a converged client; the server does not lower its
// limit once a client has converged.
const (
	NTPBootstrapHz          = 10
	NTPSteadyIntervalMillis = 1000
)

// HeartbeatResponseTimeoutMillis is how long a client may go without
// sending an NTP request before the heartbeat sweeper disconnects it.
const HeartbeatResponseTimeoutMillis = 15000

// HeartbeatSweepIntervalMillis is how often the sweeper scans for timed-out
// clients.
const HeartbeatSweepIntervalMillis = 5000
