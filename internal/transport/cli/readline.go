package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const fileCommand = "/file"

type Conversation interface {
	Handle(ctx context.Context, id int64, in conversation.Input) (conversation.Reply, error)
	Options(id int64) []string
}

// ReadLine is a local console that acts as one identity. Commands go to the
// router, "/file <path>" submits a file and other lines are conversation text.
type ReadLine struct {
	cfg          *config.AppConfig
	identity     int64
	router       core.CmdRouter
	conversation Conversation
	rl           *readline.Instance
}

func NewReadLine(cfg *config.AppConfig, identity int64, router core.CmdRouter, conv Conversation) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("[%d] >>> ", identity),
		HistoryFile:     filepath.Join(cfg.RuntimePath, "input_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:          cfg,
		identity:     identity,
		router:       router,
		conversation: conv,
		rl:           rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Int64("identity", r.identity).Msg("console started. Type 'exit' to quit.")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		out, options := r.dispatch(ctx, line)
		r.print(out, options)
	}
}

func (r *ReadLine) dispatch(ctx context.Context, line string) (string, []string) {
	caller := core.Caller{ID: r.identity, Name: "console"}

	// "/file <path> /command" hands the file to the command as its body.
	if rest, ok := strings.CutPrefix(line, fileCommand+" "); ok {
		path, command, _ := strings.Cut(strings.TrimSpace(rest), " /")
		art, err := readArtifact(strings.TrimSpace(path))
		if err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}
		if command != "" {
			if out, ok := r.router.Execute(ctx, caller, "/"+command+"\n"+string(art.Data)); ok {
				return out, r.conversation.Options(r.identity)
			}
		}
		return r.converse(ctx, conversation.Input{Kind: conversation.InputArtifact, Artifact: &art})
	}

	if out, ok := r.router.Execute(ctx, caller, line); ok {
		return out, r.conversation.Options(r.identity)
	}
	return r.converse(ctx, conversation.Input{Kind: conversation.InputText, Text: line})
}

func (r *ReadLine) converse(ctx context.Context, in conversation.Input) (string, []string) {
	reply, err := r.conversation.Handle(ctx, r.identity, in)
	if err != nil {
		if !errors.Is(err, core.ErrBusy) {
			log.FromCtx(ctx).Error().Err(err).Msg("conversation failed")
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	return reply.Text, reply.Options
}

func (r *ReadLine) print(out string, options []string) {
	w := r.rl.Stdout()
	fmt.Fprintln(w, out)
	for i, opt := range options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
}

func readArtifact(path string) (core.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return core.Artifact{
		FileName:  filepath.Base(path),
		MediaType: mediaType,
		Data:      data,
	}, nil
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
