// Command client is a terminal chat client for the gateway. It sends chat
// messages over the WebSocket, reassembles the audio stream in sentence
// order, and writes each turn's audio to disk.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxcast/charchat/internal/playback"
	"github.com/voxcast/charchat/internal/protocol"
)

func main() {
	gateway := flag.String("gateway", "ws://localhost:3000/ws/chat", "gateway WebSocket URL")
	character := flag.String("character", "", "character to chat with (cheerful|sarcastic|gentle)")
	greet := flag.Bool("greet", false, "ask the character to open the conversation")
	outDir := flag.String("out", "", "directory for per-turn audio files (empty = discard audio)")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*gateway, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *gateway, err)
		os.Exit(1)
	}
	defer conn.Close()

	var turn atomic.Int64
	seq := playback.NewSequencer(
		func(data []byte) ([]byte, error) { return data, nil },
		func(index int, audio []byte) {
			if *outDir == "" {
				return
			}
			name := fmt.Sprintf("turn%03d-sentence%03d.mp3", turn.Load(), index)
			if err := os.WriteFile(filepath.Join(*outDir, name), audio, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write audio: %v\n", err)
			}
		},
	)
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *outDir, err)
			os.Exit(1)
		}
	}

	done := make(chan struct{})
	go readLoop(conn, seq, &turn, done)

	if *greet {
		id := *character
		if id == "" {
			id = "cheerful"
		}
		send(conn, protocol.ClientMessage{Type: protocol.TypeStartChat, CharacterID: id})
	}

	fmt.Println("connected; type a message and press enter (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		send(conn, protocol.ClientMessage{Type: protocol.TypeChat, Message: text, CharacterID: *character})
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func send(conn *websocket.Conn, msg protocol.ClientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
	}
}

func readLoop(conn *websocket.Conn, seq *playback.Sequencer, turn *atomic.Int64, done chan<- struct{}) {
	defer close(done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			seq.AddChunk(data)
			continue
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "bad frame: %v\n", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeThinking:
			turn.Add(1)
			seq.Reset()
			fmt.Println("[thinking]")
		case protocol.TypeEmotion:
			fmt.Printf("[emotion: %s]\n", msg.Emotion)
		case protocol.TypeAudioEnd:
			if msg.SentenceIndex != nil {
				seq.EndSegment(*msg.SentenceIndex)
			}
		case protocol.TypeResponseEnd:
			fmt.Printf("> %s\n", msg.FullText)
		case protocol.TypeChatStarted:
			fmt.Println("[chat started]")
		case protocol.TypeChatEnded:
			fmt.Println("[chat ended]")
			return
		case protocol.TypeError:
			fmt.Fprintf(os.Stderr, "[error] %s\n", msg.Message)
		}
	}
}
