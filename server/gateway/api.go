package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcadvchat/meshtp/transport"
)

func Health(writer http.ResponseWriter, req *http.Request) {
	io.WriteString(writer, "ok")
}

// StatsResponse is the /v1/stats document.
type StatsResponse struct {
	Receiver           transport.ReceiverStats `json:"receiver"`
	Sender             transport.SenderStats   `json:"sender"`
	RetransmitRequests uint64                  `json:"retransmit_requests"`
	WebsocketClients   int                     `json:"websocket_clients"`
	LegacyMessages     uint64                  `json:"legacy_messages"`
}

func (g *Gateway) handleStats(writer http.ResponseWriter, req *http.Request) {
	stats := &StatsResponse{
		Receiver:           g.Receiver.Stats(),
		Sender:             g.Sender.Stats(),
		RetransmitRequests: g.Retransmitter.Requests(),
		WebsocketClients:   g.Hub.Count(),
		LegacyMessages:     g.LegacyCount(),
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(stats); err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
	}
}

func (g *Gateway) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", Health)
	router.HandleFunc("/v1/stats", g.handleStats).Methods("GET")
	router.HandleFunc("/ws", g.Hub.Connect)
	return router
}
