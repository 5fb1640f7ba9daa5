// Command chat is a line-oriented demo client for the chat engine. It is
// not the product surface — it exists to exercise the full engine (login,
// room switching, access workflow, live messaging) against a backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lalith-99/chatcore/internal/access"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/config"
	"github.com/lalith-99/chatcore/internal/conn"
	"github.com/lalith-99/chatcore/internal/models"
	"github.com/lalith-99/chatcore/internal/observ"
	"github.com/lalith-99/chatcore/internal/reconcile"
	"github.com/lalith-99/chatcore/internal/reply"
	"github.com/lalith-99/chatcore/internal/session"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		return fmt.Errorf("usage: chat <display-name>")
	}
	displayName := os.Args[1]

	ctx := context.Background()

	anon, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.ServerURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	login, err := anon.Login(ctx, displayName)
	if backend.IsCode(err, backend.CodeNotFound) {
		if _, err := anon.RegisterUser(ctx, displayName); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		login, err = anon.Login(ctx, displayName)
		if err != nil {
			return fmt.Errorf("login after register: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	client := anon.WithToken(login.Token)
	user := login.User
	fmt.Printf("logged in as %s (%s)\n", user.DisplayName, user.Capability)

	manager, err := conn.NewManager(conn.Config{
		SocketURL: cfg.SocketURL,
		Token:     login.Token,
		Fallback:  client,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := manager.Open(ctx); err != nil {
		return err
	}
	defer manager.Close()

	controller := access.NewController(client, client, logger)
	reconciler := reconcile.New(client, logger)
	sess := session.New(user, controller, manager, reconciler, logger)

	users, err := client.ListUsers(ctx)
	if err != nil {
		logger.Warn("user directory unavailable", zap.Error(err))
	}
	directory := reply.Directory(users)
	name := func(id string) string {
		if n, ok := directory[id]; ok {
			return n
		}
		return id
	}

	sess.OnUpdate(func(roomID string, messages []models.Message) {
		for _, msg := range messages[max(0, len(messages)-1):] {
			if msg.ReplyTo != nil {
				fmt.Printf("[%s] %s (re %s: %s): %s\n",
					msg.CreatedAt.Format("15:04:05"), name(msg.UserID),
					reply.AuthorName(msg.ReplyTo, directory), msg.ReplyTo.Content, msg.Content)
			} else {
				fmt.Printf("[%s] %s: %s\n",
					msg.CreatedAt.Format("15:04:05"), name(msg.UserID), msg.Content)
			}
		}
	})

	fmt.Println("commands: /rooms, /join <n>, /request, /pending, /approve <id>, /deny <id>, /leave, /quit; anything else sends")

	var rooms []models.Room
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return nil

		case line == "/rooms":
			rooms, err = client.ListRooms(ctx)
			if err != nil {
				fmt.Println("could not list rooms:", err)
				continue
			}
			for i, room := range rooms {
				fmt.Printf("%d: %s\n", i, room.Name)
			}

		case strings.HasPrefix(line, "/join "):
			index, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
			if err != nil || index < 0 || index >= len(rooms) {
				fmt.Println("usage: /rooms first, then /join <n>")
				continue
			}
			state, err := sess.SwitchTo(ctx, rooms[index])
			if err != nil {
				fmt.Println("switch failed:", err)
				continue
			}
			if state.Joined {
				fmt.Println("joined", state.Room.Name)
			} else {
				fmt.Printf("not joined: access is %s (use /request)\n", state.AccessStatus)
			}

		case line == "/request":
			request, err := sess.RequestAccess(ctx)
			if err != nil {
				fmt.Println("request failed:", err)
				continue
			}
			fmt.Println("access request is", request.Status)

		case line == "/pending":
			pending, err := controller.ListPending(ctx, user, sess.State().Room)
			if err != nil {
				fmt.Println("pending failed:", err)
				continue
			}
			for _, request := range pending {
				fmt.Printf("%s wants in (%s)\n", name(request.UserID), request.ID)
			}

		case strings.HasPrefix(line, "/approve "):
			if err := controller.Approve(ctx, user, strings.TrimSpace(strings.TrimPrefix(line, "/approve "))); err != nil {
				fmt.Println("approve failed:", err)
			}

		case strings.HasPrefix(line, "/deny "):
			if err := controller.Deny(ctx, user, strings.TrimSpace(strings.TrimPrefix(line, "/deny "))); err != nil {
				fmt.Println("deny failed:", err)
			}

		case line == "/leave":
			sess.Leave()
			fmt.Println("left room")

		case line != "":
			if err := sess.Send(ctx, line, nil); err != nil {
				fmt.Println("send failed (draft kept):", err)
			}
		}
	}
	return scanner.Err()
}
