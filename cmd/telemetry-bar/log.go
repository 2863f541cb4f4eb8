package main

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
)

const topicKey = "topic"

var knownTopics = []string{"engine", "source", "bar", "config", "dbus", "storage"}

// topicFilter decides which topic-tagged records reach the output.
// Untagged records and anything at warn or above always pass.
type topicFilter struct {
	all bool
	on  map[string]bool
}

// parseTopics builds the filter for -verbose and -log and returns the names
// in list that are not known topics.
func parseTopics(verbose bool, list string) (topicFilter, []string) {
	f := topicFilter{all: verbose, on: make(map[string]bool)}
	var unknown []string
	for t := range strings.SplitSeq(list, ",") {
		switch t = strings.TrimSpace(t); {
		case t == "":
		case t == "all":
			f.all = true
		case slices.Contains(knownTopics, t):
			f.on[t] = true
		default:
			unknown = append(unknown, t)
		}
	}
	return f, unknown
}

func (f topicFilter) allows(topic string, level slog.Level) bool {
	return f.all || topic == "" || level >= slog.LevelWarn || f.on[topic]
}

func newLogger(w io.Writer, filter topicFilter) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&topicHandler{Handler: inner, filter: filter})
}

// topicHandler applies a topicFilter. The topic comes from logger attributes
// (logger.With("topic", ...)) or, failing that, from the record itself.
type topicHandler struct {
	slog.Handler
	filter topicFilter
	topic  string
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == topicKey {
				topic = a.Value.String()
			}
			return topic == ""
		})
	}
	if !h.filter.allows(topic, r.Level) {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.Handler = h.Handler.WithAttrs(attrs)
	if i := slices.IndexFunc(attrs, func(a slog.Attr) bool { return a.Key == topicKey }); i >= 0 {
		next.topic = attrs[i].Value.String()
	}
	return &next
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.Handler = h.Handler.WithGroup(name)
	return &next
}
