package collector

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"vipcollector/internal/chat"
	"vipcollector/internal/config"
)

// Collector answers the collect command by reposting today's VIP messages
// from the source channel to the destination channel. Passes run
// independently; overlapping commands are not serialized.
type Collector struct {
	directory chat.Directory
	channels  config.ChannelConfig
	loc       *time.Location
	now       func() time.Time
	recorder  Recorder
	logger    *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Collector)

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(c *Collector) { c.loc = loc }
}

func WithRecorder(r Recorder) Option {
	return func(c *Collector) { c.recorder = r }
}

func New(d chat.Directory, channels config.ChannelConfig, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		directory: d,
		channels:  channels,
		loc:       time.Local,
		now:       time.Now,
		recorder:  nopRecorder{},
		logger:    logger.With(zap.String("component", "collector")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle starts a collection pass when ev is the collect command. It returns
// once the history fetch has been started; the rest of the pass runs in the
// background.
func (c *Collector) Handle(ctx context.Context, ev chat.Event) {
	defer c.recoverPass("handle")

	if !IsTrigger(ev) {
		return
	}
	if !c.begin() {
		c.logger.Warn("collector stopped, ignoring command", zap.String("trigger_id", ev.MessageID))
		return
	}
	// The pass goroutine takes over the WaitGroup slot once it starts.
	handedOff := false
	defer func() {
		if !handedOff {
			c.wg.Done()
		}
	}()

	report := Report{
		StartedAt: c.now(),
		TriggerID: ev.MessageID,
		OriginID:  channelID(ev.Origin),
		SourceID:  c.channels.SourceID,
		DestID:    c.channels.DestID,
	}

	source, srcOK := c.directory.Channel(ctx, c.channels.SourceID)
	dest, dstOK := c.directory.Channel(ctx, c.channels.DestID)
	if !srcOK || !dstOK {
		c.logger.Error("source or destination channel not found",
			zap.String("trigger_id", ev.MessageID),
			zap.String("source_id", c.channels.SourceID),
			zap.Bool("source_found", srcOK),
			zap.String("dest_id", c.channels.DestID),
			zap.Bool("dest_found", dstOK),
		)
		report.Outcome = OutcomeUnresolved
		c.finish(report)
		return
	}

	c.logger.Info("collection started",
		zap.String("trigger_id", ev.MessageID),
		zap.String("origin_id", report.OriginID),
		zap.String("source_id", source.ID()),
		zap.String("dest_id", dest.ID()),
	)

	handedOff = true
	go func() {
		defer c.wg.Done()
		defer c.recoverPass("collect")
		c.collect(ctx, source, dest, ev.Origin, report)
	}()
}

// Wait blocks until every pass started so far has finished.
func (c *Collector) Wait() {
	c.wg.Wait()
}

func (c *Collector) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.wg.Add(1)
	return true
}

// Stop refuses further commands and waits for running passes to finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context, source, dest, origin chat.Channel, report Report) {
	messages, err := source.History(ctx, HistoryLimit)
	if err != nil {
		err = fmt.Errorf("fetching history of %s: %w", source.ID(), err)
		c.logger.Error("fetch failed", zap.Error(err))
		c.reply(origin, FetchErrorNotice)
		report.Outcome = OutcomeFetchError
		report.Error = err.Error()
		c.finish(report)
		return
	}
	report.Fetched = len(messages)

	// Today is fixed when the command arrives, not when the fetch completes.
	selected := Select(messages, report.StartedAt, c.loc)
	report.Matched = len(selected)

	if len(selected) == 0 {
		c.reply(origin, NoResultsNotice)
		report.Outcome = OutcomeEmpty
		c.finish(report)
		return
	}

	for _, msg := range selected {
		dest.Send(msg.Content)
		report.Reposted++
		c.logger.Debug("reposted",
			zap.String("message_id", msg.ID),
			zap.Time("created_at", msg.CreatedAt),
			zap.String("content", truncate(msg.Content, 60)),
		)
	}
	report.Outcome = OutcomeReposted
	c.finish(report)
}

func (c *Collector) reply(origin chat.Channel, text string) {
	if origin == nil {
		c.logger.Warn("no origin channel to reply to", zap.String("text", text))
		return
	}
	origin.Send(text)
}

func (c *Collector) finish(report Report) {
	report.FinishedAt = c.now()
	c.logger.Info("collection finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("fetched", report.Fetched),
		zap.Int("matched", report.Matched),
		zap.Int("reposted", report.Reposted),
	)
	c.recorder.Record(report)
}

func (c *Collector) recoverPass(stage string) {
	if r := recover(); r != nil {
		c.logger.Error("collection pass panicked", zap.String("stage", stage), zap.Any("panic", r))
	}
}

func channelID(ch chat.Channel) string {
	if ch == nil {
		return ""
	}
	return ch.ID()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
