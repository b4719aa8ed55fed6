package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/memoira/internal/observe"
)

const (
	defaultLiveSampleRate = 48000
	defaultLiveChannels   = 1

	// liveFrameLimit caps a single binary frame. One second of 48 kHz
	// stereo PCM16 is 192 KiB.
	liveFrameLimit = 1 << 20
)

// handleLive upgrades to a WebSocket and meters PCM16 frames as they arrive.
//
// Binary frames carry little-endian 16-bit PCM at the sample_rate and
// channels given in the query string. Every completed analysis window is
// answered with a "level" event. A text frame {"type":"stop"} ends the
// session with a "summary" event holding the metrics and decision for the
// whole take.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	rate, err := queryInt(r, "sample_rate", defaultLiveSampleRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sample_rate must be an integer")
		return
	}
	channels, err := queryInt(r, "channels", defaultLiveChannels)
	if err != nil {
		writeError(w, http.StatusBadRequest, "channels must be an integer")
		return
	}
	session, err := s.svc.StartLive(rate, channels)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Warn("api: live upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(liveFrameLimit)

	ctx := r.Context()
	log := observe.Logger(ctx)
	s.metrics.LiveSessions.Add(ctx, 1)
	defer s.metrics.LiveSessions.Add(ctx, -1)

	windowMs := session.WindowMs()
	log.Debug("live session started", "sample_rate", rate, "channels", channels, "window_ms", windowMs)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st == websocket.StatusNormalClosure || st == websocket.StatusGoingAway {
				log.Debug("live session closed by client")
			} else {
				log.Debug("live session read ended", "err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			for _, lv := range session.Write(data) {
				ev := levelEvent{
					Type:     "level",
					Index:    lv.Index,
					RMS:      lv.RMS,
					Silent:   lv.Silent,
					EndMs:    lv.EndMs,
					WindowMs: windowMs,
				}
				if err := wsjson.Write(ctx, conn, ev); err != nil {
					log.Debug("live session write failed", "err", err)
					return
				}
			}

		case websocket.MessageText:
			var cmd liveCommand
			if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != "stop" {
				if werr := wsjson.Write(ctx, conn, errorEvent{Type: "error", Error: `expected {"type":"stop"}`}); werr != nil {
					return
				}
				continue
			}
			m, d := session.Summary(ctx)
			if err := wsjson.Write(ctx, conn, summaryEvent{Type: "summary", Metrics: m, Decision: d}); err != nil {
				log.Debug("live session write failed", "err", err)
				return
			}
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		}
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + ": not an integer")
	}
	return n, nil
}
