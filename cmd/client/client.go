package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

func main() {
	host := flag.String("host", "localhost:8080", "Control server address")
	start := flag.Bool("start", false, "Ask the server to start streaming")
	stop := flag.Bool("stop", false, "Ask the server to stop streaming")
	endpoint := flag.String("d", "", "Destination endpoint when starting (empty keeps the server default)")
	count := flag.Int("n", 0, "Exit after this many messages (0 watches forever)")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	if *start || *stop {
		ctl := map[string]interface{}{
			"type":     "stream_control",
			"enabled":  *start,
			"endpoint": *endpoint,
		}
		if err := c.WriteJSON(ctl); err != nil {
			log.Fatal("write:", err)
		}
	}

	for i := 0; *count == 0 || i < *count; i++ {
		var msg map[string]json.RawMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Println("read:", err)
			return
		}
		var kind string
		json.Unmarshal(msg["type"], &kind)
		switch kind {
		case "status":
			var st struct {
				Stream struct {
					State       string `json:"state"`
					Endpoint    string `json:"endpoint"`
					PacketsSent uint64 `json:"packets_sent"`
					SendFails   uint64 `json:"send_failures"`
				} `json:"stream"`
				SourceHz float64 `json:"source_hz"`
				TunerHz  float64 `json:"tuner_hz"`
				Muted    bool    `json:"muted"`
				CPU      float64 `json:"cpu_percent"`
			}
			json.Unmarshal(msg["status"], &st)
			log.Printf("%-8s %-22s sent=%d failed=%d | source=%g Hz tuner=%g Hz muted=%v | cpu=%.1f%%",
				st.Stream.State, st.Stream.Endpoint, st.Stream.PacketsSent, st.Stream.SendFails,
				st.SourceHz, st.TunerHz, st.Muted, st.CPU)
		default:
			b, _ := json.Marshal(msg)
			log.Printf("%s", b)
		}
	}
}
