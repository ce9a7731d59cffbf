// Package gatewayhttp is the HTTP front dispatcher: one route that turns a
// form-encoded POST into session lookup-or-creation, message intake, an
// optional synchronous eval wait, an outbox drain, and a JSON response.
package gatewayhttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sessiongate/internal/protocol"
	"sessiongate/internal/session"
)

const (
	sessionCookie    = "SESSION_TOKEN"
	evalPollInterval = 10 * time.Microsecond
)

// Dispatcher wires one session registry to one HTTP route.
type Dispatcher struct {
	reg         *session.Registry
	evalTimeout time.Duration
	log         *logrus.Logger
}

// New builds a Dispatcher. evalTimeout bounds how long a request carrying
// an INPUT_EVAL message will wait for a terminal reply before returning
// whatever is available.
func New(reg *session.Registry, evalTimeout time.Duration, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, evalTimeout: evalTimeout, log: log}
}

// Router builds a gin.Engine with the dispatcher's single route mounted.
func (d *Dispatcher) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/", d.handle)
	return r
}

func (d *Dispatcher) handle(c *gin.Context) {
	token, _ := c.Cookie(sessionCookie)
	if token != "" {
		if _, ok := d.reg.Lookup(token); !ok {
			token = ""
		}
	}

	var response []protocol.Message
	waitingForEval := false

	if raw := c.PostForm("request"); raw != "" {
		incoming, err := decodeRequest([]byte(raw))
		if err != nil {
			d.log.WithError(err).Warn("gatewayhttp: malformed request field")
		} else {
			for _, m := range incoming {
				switch m.Type {
				case protocol.InputStart:
					if token != "" {
						d.reg.MarkShouldTerminate(token)
					}
					newToken, herr := d.reg.Harvest()
					if herr != nil {
						response = append(response, protocol.New(protocol.OutputFatalError, "the server is currently at maximum capacity"))
						token = ""
					} else {
						token = newToken
					}
				case protocol.InputPoll:
					// no-op; its only effect is triggering the outbox drain below.
				default:
					if token == "" {
						response = append(response, protocol.New(protocol.OutputFatalError, "session expired"))
						continue
					}
					d.reg.With(token, func(s *session.Session) {
						s.InboxMsgs = append(s.InboxMsgs, m)
					})
					if m.Type == protocol.InputEval {
						waitingForEval = true
					}
				}
			}
		}
	}

	if waitingForEval && token != "" {
		d.waitForEval(token)
	}

	if token != "" {
		err := d.reg.With(token, func(s *session.Session) {
			s.LastTouch = time.Now()
			mergeOutboxText(s)
			response = append(response, s.OutboxMsgs...)
			s.OutboxMsgs = nil
		})
		if err != nil {
			token = ""
		}
	}

	c.Header("Content-Type", "text/html; charset=UTF-8")
	if token != "" {
		c.SetCookie(sessionCookie, token, 0, "/", "", false, false)
	}

	body, err := encodeResponse(response)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=UTF-8", body)
}

// waitForEval polls token's outbox for up to the configured eval timeout,
// returning as soon as a terminal eval-reply message type shows up.
func (d *Dispatcher) waitForEval(token string) {
	deadline := time.Now().Add(d.evalTimeout)
	for time.Now().Before(deadline) {
		done := false
		err := d.reg.With(token, func(s *session.Session) {
			for _, m := range s.OutboxMsgs {
				if m.Type.IsEvalTerminal() {
					done = true
					return
				}
			}
		})
		if err != nil || done {
			return
		}
		time.Sleep(evalPollInterval)
	}
}

// mergeOutboxText folds a session's accumulated stdout bytes into one
// OUTPUT_OTHER message, merging into an already-queued trailing
// OUTPUT_OTHER's argument rather than starting a new one. The merge uses
// the text captured before clearing outbox_text; appending the
// already-cleared value would make every merge a silent no-op.
func mergeOutboxText(s *session.Session) {
	if len(s.OutboxText) == 0 || s.Status != session.Normal {
		return
	}
	text := s.OutboxText
	s.OutboxText = nil

	if n := len(s.OutboxMsgs); n > 0 && s.OutboxMsgs[n-1].Type == protocol.OutputOther && len(s.OutboxMsgs[n-1].Args) > 0 {
		s.OutboxMsgs[n-1].Args[0] = append(s.OutboxMsgs[n-1].Args[0], text...)
		return
	}
	s.OutboxMsgs = append(s.OutboxMsgs, protocol.New(protocol.OutputOther, string(text)))
}
