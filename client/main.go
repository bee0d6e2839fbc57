// Interactive test client. Connects to a running server and lets you
// drive the JSON protocol from the terminal:
//
//	create <name>          create a room as host
//	join <code> <name>     join a room as player
//	start                  start the game (host only)
//	answer <q> <opt>       submit an answer
//	pause / resume         control the countdown (host only)
//	state                  request the current game state
//	leave                  leave the room
package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func send(c *websocket.Conn, typ string, data any) {
	if err := c.WriteJSON(envelope{Type: typ, Data: data}); err != nil {
		log.Println("Write error:", err)
	}
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	addr := "localhost:8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var raw json.RawMessage
			if err := c.ReadJSON(&raw); err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- RECV: %s", string(raw))
		}
	}()

	go func() {
		<-interrupt
		log.Println("Interrupt received, closing connection.")
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		os.Exit(0)
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "create":
			if len(fields) < 2 {
				log.Println("usage: create <name>")
				continue
			}
			send(c, "create-room", map[string]string{"name": fields[1]})
		case "join":
			if len(fields) < 3 {
				log.Println("usage: join <code> <name>")
				continue
			}
			send(c, "join-room", map[string]string{"code": fields[1], "name": fields[2]})
		case "start":
			send(c, "start-game", nil)
		case "answer":
			if len(fields) < 3 {
				log.Println("usage: answer <question-index> <option-index>")
				continue
			}
			q, _ := strconv.Atoi(fields[1])
			opt, _ := strconv.Atoi(fields[2])
			send(c, "submit-answer", map[string]int{"questionIndex": q, "optionIndex": opt})
		case "pause":
			send(c, "pause-timer", nil)
		case "resume":
			send(c, "resume-timer", nil)
		case "state":
			send(c, "request-current-state", nil)
		case "leave":
			send(c, "leave-room", nil)
		default:
			log.Printf("Unknown command %q", fields[0])
		}
	}
}
