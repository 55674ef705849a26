package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"qcaudit/app"
	"qcaudit/domain/audit"
	"qcaudit/messaging"
	"qcaudit/server"
)

// eventPrinter 把审核事件逐行写出；多个消费协程共用同一输出
type eventPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *eventPrinter) derived(_ context.Context, m messaging.IMessage) error {
	var evt audit.DerivedEvent
	if err := messaging.DecodePayload(m, &evt); err != nil {
		return err
	}
	mark := ""
	if evt.VerdictChanged() {
		mark = fmt.Sprintf(" (was %s)", evt.PreviousResult)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%d %s sample=%d found=%s result=%s%s\n",
		evt.RecordID, evt.Op, evt.SampleSize, evt.Found.String(), evt.Result, mark)
	return err
}

func (p *eventPrinter) deleted(_ context.Context, m messaging.IMessage) error {
	var evt audit.DeletedEvent
	if err := messaging.DecodePayload(m, &evt); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%d deleted\n", evt.RecordID)
	return err
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow verdict events on the configured transport until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(opts.configPath, app.WithLogOutput(cmd.ErrOrStderr()))
			p := &eventPrinter{w: cmd.OutOrStdout()}
			engine := server.NewEngine(a,
				server.WithBeforeStart(func(context.Context) error {
					if err := a.Bus.Subscribe(audit.EventDerived, messaging.NewHandler("watch.derived", p.derived)); err != nil {
						return err
					}
					return a.Bus.Subscribe(audit.EventDeleted, messaging.NewHandler("watch.deleted", p.deleted))
				}),
			)
			return engine.Start(cmd.Context())
		},
	}
}
