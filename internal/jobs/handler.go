package jobs

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/reminders"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// SecretHeader carries the shared trigger secret.
const SecretHeader = "X-Job-Secret"

// Handler lets the external scheduler trigger runs over HTTP.
type Handler struct {
	dispatcher *Dispatcher
	secret     string
	logger     *logging.Logger
}

// NewHandler creates the trigger handler. An empty secret rejects every
// request.
func NewHandler(dispatcher *Dispatcher, secret string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, secret: secret, logger: logger}
}

// Routes mounts POST /reminders and POST /waitlist.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireSecret)
	r.Post("/reminders", h.Reminders)
	r.Post("/waitlist", h.Waitlist)
	return r
}

func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			httperr.Write(w, http.StatusUnauthorized, "unauthorized", "invalid job secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Reminders runs the reminder job for one lead time.
// POST /internal/jobs/reminders?hours_ahead=24
func (h *Handler) Reminders(w http.ResponseWriter, r *http.Request) {
	hours, err := strconv.Atoi(r.URL.Query().Get("hours_ahead"))
	if err != nil {
		httperr.BadRequest(w, "hours_ahead must be an integer")
		return
	}
	h.dispatch(w, r, Trigger{Job: reminders.JobName, HoursAhead: hours, Source: SourceHTTP})
}

// Waitlist runs the cancellation backfill job.
// POST /internal/jobs/waitlist
func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, Trigger{Job: waitlist.JobName, Source: SourceHTTP})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, t Trigger) {
	run, err := h.dispatcher.Dispatch(r.Context(), t)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, run)
}
