package handlers

import (
	"net/http"
)

type iceServer struct {
	URLs []string `json:"urls"`
}

// IceServers returns the STUN/TURN endpoints clients should feed into
// their RTCPeerConnection config. The list is static per deployment.
func IceServers(urls []string) http.HandlerFunc {
	servers := make([]iceServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, iceServer{URLs: []string{u}})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"iceServers": servers})
	}
}
