// Terminal chat client: logs in, initializes the local crypto engine,
// joins one conversation and relays stdin lines as encrypted messages.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"cipherchat/internal/chat"
	"cipherchat/internal/crypto"
	"cipherchat/internal/relay"
)

func main() {
	godotenv.Load()

	var (
		serverURL = flag.String("server", envOr("CHAT_SERVER", "http://localhost:8080"), "server base URL")
		email     = flag.String("email", "", "login email")
		password  = flag.String("password", "", "login password")
		peerID    = flag.String("peer", "", "peer user id to chat with")
		keyDir    = flag.String("keydir", envOr("KEY_DIR", defaultKeyDir()), "directory for the local private key")
		plaintext = flag.Bool("plaintext", false, "disable encryption (assistant channel)")
	)
	flag.Parse()

	if *email == "" || *password == "" || *peerID == "" {
		fmt.Fprintln(os.Stderr, "usage: client -email ... -password ... -peer ...")
		os.Exit(1)
	}

	ctx := context.Background()

	token, userID, err := login(ctx, *serverURL, *email, *password)
	if err != nil {
		log.Fatalf("Failed to login: %v", err)
	}

	var engine *crypto.Engine
	if !*plaintext {
		directory := chat.NewHTTPKeyDirectory(*serverURL, token)
		engine = crypto.NewEngine(userID, directory)

		if err := os.MkdirAll(*keyDir, 0o700); err != nil {
			log.Fatalf("Failed to create key directory: %v", err)
		}
		keyPath := filepath.Join(*keyDir, userID+"_rsa.pem")
		if err := engine.Init(ctx, keyPath); err != nil {
			log.Fatalf("Failed to initialize crypto engine: %v", err)
		}
	}

	session, err := chat.Dial(ctx, *serverURL, token, userID, engine)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer session.Close()

	if err := session.Join(*peerID); err != nil {
		log.Fatalf("Failed to join conversation: %v", err)
	}
	if err := session.RequestHistory(); err != nil {
		log.Fatalf("Failed to request history: %v", err)
	}

	go receiveLoop(session, userID, *peerID)

	fmt.Printf("Connected as %s. Type a message and press enter.\n", userID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		session.Typing.Keystroke()
		if err := session.Send(ctx, line, nil); err != nil {
			log.Printf("send failed: %v", err)
		}
	}
}

func receiveLoop(session *chat.Session, selfID, peerID string) {
	for {
		in, err := session.Next()
		if err != nil {
			log.Printf("connection closed: %v", err)
			os.Exit(0)
		}

		switch {
		case in.History != nil:
			for _, msg := range in.History {
				printMessage(selfID, msg.SenderID, session.Open(msg), msg.CreatedAt)
			}
		case in.Message != nil:
			printMessage(selfID, in.Message.SenderID, session.Open(in.Message), in.Message.CreatedAt)
		case in.Typing != nil && in.Typing.UserID == peerID:
			if in.Event == relay.EventTypingOn {
				fmt.Printf("-- %s is typing...\n", peerID)
			}
		case in.Err != nil:
			log.Printf("server: %s", in.Err.Error)
		}
	}
}

func printMessage(selfID, senderID, text string, at time.Time) {
	who := senderID
	if senderID == selfID {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", at.Format("15:04:05"), who, text)
}

func login(ctx context.Context, serverURL, email, password string) (token, userID string, err error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", err
	}
	return payload.Token, payload.UserID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cipherchat"
	}
	return filepath.Join(home, ".cipherchat")
}
