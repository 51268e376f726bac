package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerURL string `envconfig:"SERVER_URL" default:"ws://localhost:8080/ws/chat/"`
	UserID    string `envconfig:"USER_ID"`
	Username  string `envconfig:"USERNAME" default:"guest"`
}

// client is a small terminal chat client: it joins the room, renders every
// broadcast it receives and sends each stdin line as a message frame.
func main() {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.UserID == "" {
		config.UserID = uuid.New().String()
	}

	conn, _, err := websocket.DefaultDialer.Dial(config.ServerURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", config.ServerURL, err)
	}
	defer conn.Close()

	join := map[string]string{"type": "join", "userId": config.UserID, "username": config.Username}
	if err := conn.WriteJSON(join); err != nil {
		log.Fatalf("Failed to join: %v", err)
	}

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				color.Red.Println("Connection closed:", err)
				os.Exit(0)
			}
			render(raw)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		frame := map[string]string{"type": "message", "userId": config.UserID, "text": text}
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("Failed to send: %v", err)
		}
	}
}

func render(raw []byte) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame["type"] {
	case "history":
		messages, _ := frame["messages"].([]any)
		color.Gray.Printf("--- %d earlier messages ---\n", len(messages))
		for _, m := range messages {
			if msg, ok := m.(map[string]any); ok {
				printMessage(msg, color.Gray)
			}
		}
	case "message":
		printMessage(frame, color.Normal)
	case "user-join":
		color.Green.Printf("* %v joined\n", frame["username"])
	case "user-left":
		color.Yellow.Printf("* %v left\n", frame["userId"])
	case "users":
		users, _ := frame["users"].([]any)
		color.Cyan.Printf("* %d users in the room\n", len(users))
	}
}

func printMessage(msg map[string]any, c color.Color) {
	c.Println(fmt.Sprintf("<%v> %v", msg["username"], msg["text"]))
}
