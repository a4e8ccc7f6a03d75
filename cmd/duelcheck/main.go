package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/contentapi"
	"github.com/park285/Cheese-CardDuel/internal/duelclient"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

func main() {
	baseURL := os.Getenv("CONTENT_BASE_URL")
	token := os.Getenv("CONTENT_TOKEN")
	wsURL := os.Getenv("DUEL_WS_URL")
	userID := os.Getenv("X_USER_ID")
	userName := os.Getenv("X_USER_NAME")

	if userID == "" {
		userID = "duelcheck"
	}

	if baseURL != "" {
		var opts []contentapi.Option
		if token != "" {
			opts = append(opts, contentapi.WithBearerToken(token))
		}
		client := contentapi.NewClient(baseURL, append(opts, contentapi.WithTimeout(8*time.Second))...)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx); err != nil {
			log.Printf("content ping error: %v", err)
		} else {
			log.Println("content ping ok")
		}
		d, err := client.GetSavedDeck(ctx, userID)
		if err != nil {
			log.Printf("deck for %s: %v", userID, err)
		} else {
			log.Printf("deck for %s ok: name=%q cards=%d", userID, d.Name, d.Size())
		}
		cancel()
	} else {
		log.Println("CONTENT_BASE_URL not set; skipping content check")
	}

	if wsURL == "" {
		log.Println("DUEL_WS_URL not set; skipping WS check")
		return
	}

	ws := duelclient.New(wsURL, duelclient.WithUser(userID, userName), duelclient.WithReconnect(5, time.Second))
	ws.OnStateChange(func(state duelclient.State) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(m dueldto.ServerMessage) {
		fmt.Printf("WS msg type=%s room=%s seq=%d detail=%q\n", m.Type, m.RoomID, m.Sequence, m.Detail)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer func() { _ = ws.Close(context.Background()) }()

	// round trip: open a room and close it again
	req, err := ws.CreateRoom(cctx)
	if err != nil {
		log.Printf("create_room error: %v", err)
		return
	}
	ack, err := ws.Await(cctx, func(m dueldto.ServerMessage) bool { return m.RequestID == req })
	if err != nil {
		log.Printf("no reply to create_room: %v", err)
		return
	}
	if ack.Type != dueldto.TypeRoomState {
		log.Printf("create_room refused: %s %s", ack.Type, describe(ack))
		return
	}
	log.Printf("room %s created", ack.RoomID)
	if _, err := ws.CloseRoom(cctx, ack.RoomID); err != nil {
		log.Printf("close_room error: %v", err)
		return
	}
	if _, err := ws.Await(cctx, func(m dueldto.ServerMessage) bool {
		return m.Type == dueldto.TypeRoomClosed && m.RoomID == ack.RoomID
	}); err != nil {
		log.Printf("room_closed not seen: %v", err)
		return
	}
	log.Println("room round trip ok")
}

func describe(m dueldto.ServerMessage) string {
	if m.Rejection != nil {
		return m.Rejection.Kind + ": " + m.Rejection.Detail
	}
	return m.Detail
}
