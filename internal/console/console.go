// Package console reads operator input for the client and broker
// processes and prints client events.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrBlank          = errors.New("console: blank input")
	ErrMissingTarget  = errors.New("console: missing login")
	ErrUnknownCommand = errors.New("console: unknown command")
)

// Kind selects what a client line does.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindFile
)

const (
	privateMarker = "@"
	fileMarker    = "/"
)

// Line is one parsed client input line.
type Line struct {
	Kind  Kind
	Login string
	// Text is the message, or the file name for KindFile.
	Text string
}

// ParseClientLine reads "@login message" as a private message,
// "/login file" as a file send, and anything else as a public message.
func ParseClientLine(s string) (Line, error) {
	s = strings.TrimRight(s, "\r\n")
	if strings.TrimSpace(s) == "" {
		return Line{}, ErrBlank
	}
	kind := KindPublic
	switch {
	case strings.HasPrefix(s, privateMarker):
		kind = KindPrivate
		s = s[len(privateMarker):]
	case strings.HasPrefix(s, fileMarker):
		kind = KindFile
		s = s[len(fileMarker):]
	default:
		return Line{Kind: KindPublic, Text: s}, nil
	}
	login, rest, _ := strings.Cut(s, " ")
	if login == "" {
		return Line{}, ErrMissingTarget
	}
	if kind == KindFile {
		rest = strings.TrimSpace(rest)
	}
	if strings.TrimSpace(rest) == "" {
		return Line{}, ErrBlank
	}
	return Line{Kind: kind, Login: login, Text: rest}, nil
}

// ClientActions is what a client console drives.
type ClientActions interface {
	SendPublic(message string) error
	SendPrivate(login, message string) error
	SendFile(login, name string) error
}

// RunClient executes lines from in until EOF or ctx is done. Rejected
// lines are reported on out and do not stop the loop.
func RunClient(ctx context.Context, in io.Reader, out io.Writer, c ClientActions) error {
	return scanLines(ctx, in, func(raw string) {
		line, err := ParseClientLine(raw)
		if err == nil {
			switch line.Kind {
			case KindPrivate:
				err = c.SendPrivate(line.Login, line.Text)
			case KindFile:
				err = c.SendFile(line.Login, line.Text)
			default:
				err = c.SendPublic(line.Text)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	})
}

// BrokerCommand is one broker console command.
type BrokerCommand int

const (
	CmdInfo BrokerCommand = iota
	CmdShutdown
	CmdShutdownNow
)

func ParseBrokerCommand(s string) (BrokerCommand, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return CmdInfo, nil
	case "shutdown":
		return CmdShutdown, nil
	case "shutdownnow":
		return CmdShutdownNow, nil
	case "":
		return 0, ErrBlank
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(s))
	}
}

// BrokerActions is what a broker console drives.
type BrokerActions interface {
	Logins() []string
	StopOnboarding()
	Shutdown()
}

// RunBroker executes commands from in until EOF, ctx is done, or a
// shutdownnow.
func RunBroker(ctx context.Context, in io.Reader, out io.Writer, b BrokerActions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return scanLines(ctx, in, func(raw string) {
		cmd, err := ParseBrokerCommand(raw)
		if err != nil {
			if !errors.Is(err, ErrBlank) {
				fmt.Fprintf(out, "! %v (commands: info, shutdown, shutdownnow)\n", err)
			}
			return
		}
		switch cmd {
		case CmdInfo:
			logins := b.Logins()
			fmt.Fprintf(out, "%d client(s) authenticated\n", len(logins))
			for _, l := range logins {
				fmt.Fprintf(out, "- %s\n", l)
			}
		case CmdShutdown:
			b.StopOnboarding()
			fmt.Fprintln(out, "no longer accepting new clients")
		case CmdShutdownNow:
			fmt.Fprintln(out, "closing every connection")
			b.Shutdown()
			cancel()
		}
	})
}

// scanLines feeds lines to handle on the calling goroutine. The reader
// goroutine may outlive a cancelled ctx while blocked on input.
func scanLines(ctx context.Context, in io.Reader, handle func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			handle(line)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}
