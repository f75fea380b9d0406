package core

import "testing"

func TestHandleNTPRequest_EchoesClientSendAndStampsServerTimes(t *testing.T) {
	req := NTPRequest{ClientSendMillis: 1000}
	resp := HandleNTPRequest(req, 2000, 2005)

	if resp.ClientSendMillis != 1000 {
		t.Fatalf("ClientSendMillis = %d, want 1000", resp.ClientSendMillis)
	}
	if resp.ServerReceiveMillis != 2000 {
		t.Fatalf("ServerReceiveMillis = %d, want 2000", resp.ServerReceiveMillis)
	}
	if resp.ServerSendMillis != 2005 {
		t.Fatalf("ServerSendMillis = %d, want 2005", resp.ServerSendMillis)
	}
}
