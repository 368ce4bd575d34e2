package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

type repl struct {
	ctrl *chat.Controller
	in   io.Reader
	out  io.Writer
}

func newREPL(ctrl *chat.Controller, in io.Reader, out io.Writer) *repl {
	return &repl{ctrl: ctrl, in: in, out: out}
}

// Run reads commands until EOF, /quit or ctx is done.
func (r *repl) Run(ctx context.Context) error {
	r.printHeader()

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		r.ctrl.NewChat()
		r.printHeader()
	case "/list":
		r.printList()
	case "/select", "/delete":
		id, ok := r.pick(fields)
		if !ok {
			return false, nil
		}
		if fields[0] == "/select" {
			err = r.ctrl.SelectChat(id)
		} else {
			err = r.ctrl.DeleteChat(id)
		}
		if errors.Is(err, chat.ErrCannotDeleteLastSession) {
			fmt.Fprintln(r.out, "warning: cannot delete the last chat")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		r.printHeader()
	default:
		return false, r.send(ctx, line)
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, prompt string) error {
	fmt.Fprint(r.out, "assistant: ")
	exchange, err := r.ctrl.SendMessage(ctx, prompt, func(_, fragment string) {
		fmt.Fprint(r.out, fragment)
	})
	fmt.Fprintln(r.out)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(r.out, "error: %v\n", err)
		return nil
	}
	if exchange.TitleChanged {
		fmt.Fprintf(r.out, "(chat renamed to %q)\n", exchange.Title)
	}
	return nil
}

// newestFirst mirrors the sidebar ordering used by /list.
func (r *repl) newestFirst() []string {
	sessions := r.ctrl.Store().List()
	ids := make([]string, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		ids = append(ids, sessions[i].ID)
	}
	return ids
}

func (r *repl) pick(fields []string) (string, bool) {
	if len(fields) != 2 {
		fmt.Fprintf(r.out, "usage: %s N\n", fields[0])
		return "", false
	}
	n, err := strconv.Atoi(fields[1])
	ids := r.newestFirst()
	if err != nil || n < 1 || n > len(ids) {
		fmt.Fprintf(r.out, "no chat %q, see /list\n", fields[1])
		return "", false
	}
	return ids[n-1], true
}

func (r *repl) printList() {
	active := r.ctrl.Store().ActiveID()
	for i, id := range r.newestFirst() {
		session, err := r.ctrl.Store().Session(id)
		if err != nil {
			continue
		}
		marker := " "
		if id == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d. %s (%d messages)\n", marker, i+1, session.Title, len(session.Messages))
	}
}

func (r *repl) printHeader() {
	session, err := r.ctrl.Store().Session(r.ctrl.Store().ActiveID())
	if err != nil {
		return
	}
	fmt.Fprintf(r.out, "== %s ==\n", session.Title)
	for _, msg := range session.Messages {
		fmt.Fprintf(r.out, "%s: %s\n", msg.Role, msg.Content)
	}
}
