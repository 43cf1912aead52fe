package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"queuesync/internal/apperr"
	"queuesync/internal/auth"
	"queuesync/internal/config"
	"queuesync/internal/database"
	"queuesync/internal/logger"
	"queuesync/internal/queue"
	"queuesync/internal/syncer"
)

// QueueStore es lo que la API necesita del repositorio de colas
type QueueStore interface {
	ListQueues(ctx context.Context) ([]queue.Record, error)
	GetQueue(ctx context.Context, number string) (*queue.Record, error)
	UpdateQueueSettings(ctx context.Context, number string, s queue.Settings) (*queue.Record, error)
}

// UserStore busca usuarios para el login
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*database.User, error)
}

// Syncer ejecuta y reporta sincronizaciones
type Syncer interface {
	Run(ctx context.Context) (*queue.SyncResult, error)
	Status() syncer.Status
}

// Server representa el servidor API REST
type Server struct {
	config config.APIConfig
	tokens *auth.Manager
	queues QueueStore
	users  UserStore
	sync   Syncer
	hub    http.Handler
}

// NewServer crea un nuevo servidor API. hub puede ser nil.
func NewServer(cfg config.APIConfig, tokens *auth.Manager, queues QueueStore, users UserStore, sync Syncer, hub http.Handler) *Server {
	return &Server{
		config: cfg,
		tokens: tokens,
		queues: queues,
		users:  users,
		sync:   sync,
		hub:    hub,
	}
}

// Handler arma las rutas con sus middlewares
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Públicas
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	// Protegidas
	mux.Handle("POST /api/v1/queues/sync", s.tokens.Require(auth.PermQueuesManage, s.handleSync))
	mux.Handle("GET /api/v1/queues/sync/status", s.tokens.Require(auth.PermQueuesView, s.handleSyncStatus))
	mux.Handle("GET /api/v1/queues", s.tokens.Require(auth.PermQueuesView, s.handleQueues))
	mux.Handle("GET /api/v1/queues/{number}", s.tokens.Require(auth.PermQueuesView, s.handleQueue))
	mux.Handle("PUT /api/v1/queues/{number}", s.tokens.Require(auth.PermQueuesManage, s.handleQueueUpdate))

	return s.corsMiddleware(mux)
}

// Start inicia el servidor HTTP y lo detiene cuando ctx se cancela
func (s *Server) Start(ctx context.Context) error {
	log := logger.For("api")
	addr := s.config.Address()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("iniciando servidor", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("deteniendo servidor")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// corsMiddleware agrega headers CORS si está habilitado y recupera panics
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				logger.For("api").Error("panic recuperado", "panic", rec, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// handleHealth endpoint de salud
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleLogin procesa el inicio de sesión
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logger.For("auth")

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "JSON inválido", http.StatusBadRequest)
		return
	}

	user, err := s.users.GetUserByUsername(r.Context(), creds.Username)
	if err != nil || user == nil || !user.Active {
		// no revelar si el usuario existe
		log.Warn("fallo login", "username", creds.Username, "error", err)
		http.Error(w, "Credenciales inválidas", http.StatusUnauthorized)
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, creds.Password); err != nil {
		log.Warn("contraseña incorrecta", "username", creds.Username)
		http.Error(w, "Credenciales inválidas", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		http.Error(w, "Error generando token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
		"user": map[string]interface{}{
			"username":    user.Username,
			"role":        user.Role,
			"fullName":    user.FullName,
			"permissions": auth.Permissions(user.Role),
		},
	})
}

// handleSync ejecuta una sincronización y espera su resultado
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	logger.For("api").Info("sincronización solicitada", "username", claims.Username)

	res, err := s.sync.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleQueues lista todas las colas, activas e inactivas
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	recs, err := s.queues.ListQueues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	rec, err := s.queues.GetQueue(r.Context(), r.PathValue("number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleQueueUpdate edita nombre, umbrales y monitoreo de una cola
func (s *Server) handleQueueUpdate(w http.ResponseWriter, r *http.Request) {
	var settings queue.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "JSON inválido", http.StatusBadRequest)
		return
	}

	number := r.PathValue("number")
	rec, err := s.queues.UpdateQueueSettings(r.Context(), number, settings)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, _ := auth.GetUserFromContext(r.Context())
	logger.For("api").Info("cola actualizada", "queue", number, "username", claims.Username)
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responde {stage, kind, error}; stage solo viene de una corrida fallida
func writeError(w http.ResponseWriter, err error) {
	body := struct {
		Stage syncer.Stage `json:"stage,omitempty"`
		Kind  apperr.Kind  `json:"kind"`
		Error string       `json:"error"`
	}{
		Kind:  apperr.KindOf(err),
		Error: err.Error(),
	}

	var serr *syncer.StageError
	if errors.As(err, &serr) {
		body.Stage = serr.Stage
		body.Kind = serr.Kind
	}

	status := apperr.HTTPStatus(body.Kind)
	if status >= http.StatusInternalServerError {
		logger.For("api").Error("error en solicitud", "kind", body.Kind, "error", err)
	}
	writeJSON(w, status, body)
}
