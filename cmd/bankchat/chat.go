package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"bankchat/internal/agent"
	"bankchat/internal/config"
	"bankchat/internal/history"
	"bankchat/internal/session"
	"bankchat/internal/stream"
	"bankchat/internal/surface"
	"bankchat/internal/tools"

	"github.com/spf13/cobra"
)

type chatOptions struct {
	model  string
	system string
	resume string
	cont   bool
	noSave bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the assistant (one-shot when a prompt is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r, err := newChatRunner(cfg, cmd.OutOrStdout(), opts)
			if err != nil {
				return err
			}
			if prompt := strings.TrimSpace(strings.Join(args, " ")); prompt != "" {
				return r.turn(ctx, prompt)
			}
			return r.interactive(ctx, cmd.InOrStdin())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "Model name (default from config)")
	flags.StringVar(&opts.system, "system", "", "System prompt for a new conversation")
	flags.StringVarP(&opts.resume, "resume", "r", "", "Resume a saved session by ID")
	flags.BoolVar(&opts.cont, "continue", false, "Continue the most recent session")
	flags.BoolVar(&opts.noSave, "no-save", false, "Do not persist the session")
	return cmd
}

type chatRunner struct {
	proc      *stream.Processor
	term      *surface.Terminal
	out       io.Writer
	sessions  *session.Store
	history   *history.Store
	options   agent.ModelOptions
	sessionID string
	messages  []agent.Message
	system    string
	save      bool
}

func newChatRunner(cfg config.Config, out io.Writer, opts *chatOptions) (*chatRunner, error) {
	reg, err := newRegistry(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	term := surface.NewTerminal(out, 0)
	proc, err := stream.New(stream.Options{
		BaseURL:     cfg.URL,
		APIKey:      cfg.Token,
		Registry:    reg,
		Dispatcher:  tools.NewDispatcher(reg, term, tools.WithValidation(cfg.ValidateArguments)),
		Timeout:     cfg.RequestTimeout(),
		IdleTimeout: cfg.IdleTimeout(),
	})
	if err != nil {
		return nil, err
	}

	r := &chatRunner{
		proc: proc,
		term: term,
		out:  out,
		options: agent.ModelOptions{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		system: strings.TrimSpace(opts.system),
		save:   !opts.noSave,
	}
	if m := strings.TrimSpace(opts.model); m != "" {
		r.options.Model = m
	}
	if r.sessions, err = session.NewDefault(); err != nil {
		log.Warnf("session persistence disabled: %v", err)
		r.save = false
	}
	if r.history, err = history.NewDefault(); err != nil {
		log.Warnf("prompt history disabled: %v", err)
	}

	if err := r.restore(opts); err != nil {
		return nil, err
	}
	if len(r.messages) == 0 {
		r.messages = r.seed()
	}
	return r, nil
}

// seed 返回新对话的初始消息：只有 --system 指定的系统提示。
func (r *chatRunner) seed() []agent.Message {
	if r.system == "" {
		return nil
	}
	return []agent.Message{{Role: agent.RoleSystem, Content: r.system}}
}

func (r *chatRunner) restore(opts *chatOptions) error {
	if r.sessions == nil || (opts.resume == "" && !opts.cont) {
		return nil
	}
	var (
		rec session.Record
		err error
	)
	if opts.resume != "" {
		rec, err = r.sessions.Load(opts.resume)
	} else {
		rec, err = r.sessions.Last()
		if errors.Is(err, session.ErrNoSessions) {
			log.Infof("no previous session, starting a new one")
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	r.sessionID = rec.ID
	r.messages = append(r.messages, rec.Messages...)
	if rec.Model != "" && opts.model == "" {
		r.options.Model = rec.Model
	}
	fmt.Fprintf(r.out, "resumed session %s (%d messages): %s\n", rec.ID, len(rec.Messages), rec.Title())
	return nil
}

// turn 发送一轮用户输入并把回复流式写到终端。失败的一轮不会留在对话记录中。
func (r *chatRunner) turn(ctx context.Context, text string) error {
	if r.history != nil {
		if err := r.history.Append(r.sessionID, text); err != nil {
			log.Warnf("append history: %v", err)
		}
	}
	r.messages = append(r.messages, agent.Message{Role: agent.RoleUser, Content: text})

	r.term.ShowTypingIndicator()
	full, err := r.proc.Stream(ctx, stream.Request{
		Messages: r.messages,
		Options:  r.options,
		OnToken: func(delta string, complete bool) {
			if complete {
				r.term.HideTypingIndicator()
				fmt.Fprintln(r.out)
				return
			}
			r.term.WriteToken(delta)
		},
		OnCommand: func(cmd tools.Command) {
			log.Debugf("command %s (%s) id=%s", cmd.Name, cmd.Source, cmd.ID)
		},
	})
	if err != nil {
		r.term.HideTypingIndicator()
		r.messages = r.messages[:len(r.messages)-1]
		return err
	}
	r.messages = append(r.messages, agent.Message{Role: agent.RoleAssistant, Content: full})

	if r.save && r.sessions != nil {
		id, err := r.sessions.Save(r.sessionID, r.options.Model, r.messages)
		if err != nil {
			log.Warnf("save session: %v", err)
		} else {
			r.sessionID = id
		}
	}
	return nil
}

func (r *chatRunner) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/history":
			r.printHistory()
			continue
		case line == "/new":
			r.sessionID = ""
			r.messages = r.seed()
			fmt.Fprintln(r.out, "started a new session")
			continue
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *chatRunner) printHistory() {
	if r.history == nil {
		return
	}
	texts, err := r.history.Recent(20)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	for i, text := range texts {
		fmt.Fprintf(r.out, "%3d  %s\n", i+1, text)
	}
}
