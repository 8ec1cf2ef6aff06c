package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/ringi/pkg/service/transport"
	"github.com/secmon-lab/ringi/pkg/usecase"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

type Server struct {
	router             *chi.Mux
	uc                 *usecase.UseCases
	hub                *transport.Hub
	slackInteraction   *SlackInteractionHandler
	slackSigningSecret string
	heartbeat          time.Duration
}

type Options func(*Server)

// WithHub enables the in-app notification stream
func WithHub(hub *transport.Hub) Options {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithHeartbeat sets the ping interval of notification streams. Non-positive
// values keep the default.
func WithHeartbeat(d time.Duration) Options {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func WithSlackInteraction(handler *SlackInteractionHandler, signingSecret string) Options {
	return func(s *Server) {
		s.slackInteraction = handler
		s.slackSigningSecret = signingSecret
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:    r,
		uc:        uc,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Post("/projects", s.initializeHandler)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/workflow", s.workflowHandler)
			r.Post("/members", s.selectMemberHandler)
			r.Post("/stages/{stageID}/{operation}", s.stageHandler)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotificationsHandler)
			r.Post("/read", s.markAllReadHandler)
			if s.hub != nil {
				r.Get("/stream", s.streamHandler)
			}
			r.Get("/{notificationID}", s.getNotificationHandler)
			r.Post("/{notificationID}/read", s.markReadHandler)
			r.Post("/{notificationID}/actions/{token}", s.actHandler)
		})
	})

	// Slack interaction endpoint - No actor header, uses signature verification
	if s.slackInteraction != nil {
		r.Route("/hooks/slack", func(r chi.Router) {
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
			r.Post("/interaction", s.slackInteraction.ServeHTTP)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
