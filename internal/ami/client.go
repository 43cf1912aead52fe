package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"queuesync/internal/apperr"
	"queuesync/internal/config"
	"queuesync/internal/logger"
)

const bannerPrefix = "Asterisk Call Manager"

// Session representa una conexión AMI autenticada. Admite una sola acción
// en vuelo: cada Send bloquea hasta recibir la respuesta con su ActionID.
type Session struct {
	cfg    config.AMIConfig
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	log    *slog.Logger

	mu     sync.Mutex
	broken error
	closed bool
	once   sync.Once

	// Banner es la primera línea enviada por Asterisk
	Banner string

	newID func() string
}

// Dialer abre sesiones AMI con una configuración fija
type Dialer struct {
	Config config.AMIConfig
}

// NewDialer crea un Dialer
func NewDialer(cfg config.AMIConfig) *Dialer {
	return &Dialer{Config: cfg}
}

// Dial abre una sesión con la configuración del Dialer
func (d *Dialer) Dial(ctx context.Context) (*Session, error) {
	return Dial(ctx, d.Config)
}

// Dial conecta con el AMI, lee el banner y realiza el login.
// El socket debe abrirse dentro de ConnectTimeout y el login completarse
// dentro de Timeout.
func Dial(ctx context.Context, cfg config.AMIConfig) (*Session, error) {
	addr := cfg.Address()
	log := logger.For("ami").With("addr", addr)
	log.Info("conectando")

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "ami.dial", err)
	}

	s := &Session{
		cfg:    cfg,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		log:    log,
		newID:  func() string { return uuid.NewString() },
	}

	if err := s.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("conectado", "banner", s.Banner)
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := s.armDeadline(ctx)
	defer stop()

	// Leer banner inicial
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return s.classify(ctx, "ami.banner", err)
	}
	s.Banner = strings.TrimSpace(line)
	if !strings.HasPrefix(s.Banner, bannerPrefix) {
		return apperr.Newf(apperr.KindProtocol, "ami.banner", "banner inesperado %q", s.Banner)
	}

	login := NewAction("Login", "Username", s.cfg.Username, "Secret", s.cfg.Secret, "Events", "off")
	resp, _, err := s.exchange(ctx, login, "")
	if err != nil {
		return err
	}
	if !strings.EqualFold(resp.Get("Response"), "Success") {
		return apperr.Newf(apperr.KindAuthentication, "ami.login", "login rechazado: %s", resp.Get("Message"))
	}
	return nil
}

// Send envía una acción y espera su respuesta. Una respuesta de error se
// devuelve como error de protocolo.
func (s *Session) Send(ctx context.Context, action Action) (*Message, error) {
	resp, _, err := s.do(ctx, action, "")
	return resp, err
}

// SendList envía una acción que responde con una lista de eventos y los
// recoge hasta el evento complete (o EventList: Complete).
func (s *Session) SendList(ctx context.Context, action Action, complete string) (*Message, []Message, error) {
	return s.do(ctx, action, complete)
}

func (s *Session) do(ctx context.Context, action Action, complete string) (*Message, []Message, error) {
	if s == nil {
		return nil, nil, apperr.Newf(apperr.KindConnection, "ami.send", "sesión no establecida")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, apperr.Newf(apperr.KindConnection, "ami.send", "sesión cerrada")
	}
	if s.broken != nil {
		return nil, nil, apperr.New(apperr.KindConnection, "ami.send", fmt.Errorf("sesión inutilizable: %w", s.broken))
	}

	stop := s.armDeadline(ctx)
	defer stop()

	resp, events, err := s.exchange(ctx, action, complete)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(resp.Get("Response"), "Error") {
		return nil, nil, apperr.Newf(apperr.KindProtocol, "ami."+action.Name, "acción rechazada: %s", resp.Get("Message"))
	}
	return resp, events, nil
}

// exchange escribe la acción y lee hasta su respuesta y, si complete no es
// vacío, hasta el final de su lista de eventos. Debe llamarse con mu tomado
// y el deadline armado.
func (s *Session) exchange(ctx context.Context, action Action, complete string) (*Message, []Message, error) {
	op := "ami." + action.Name
	id := s.newID()

	frame, err := action.encode(id)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindProtocol, op, err)
	}
	if _, err := s.writer.WriteString(frame); err != nil {
		return nil, nil, s.fail(ctx, op, err)
	}
	if err := s.writer.Flush(); err != nil {
		return nil, nil, s.fail(ctx, op, err)
	}

	var resp *Message
	for resp == nil {
		msg, err := readMessage(s.reader)
		if err != nil {
			return nil, nil, s.fail(ctx, op, err)
		}
		if msg.IsResponse() && msg.ActionID() == id {
			resp = msg
			continue
		}
		s.log.Debug("mensaje ignorado", "event", msg.Type(), "action_id", msg.ActionID())
	}

	if complete == "" || !strings.EqualFold(resp.Get("Response"), "Success") {
		return resp, nil, nil
	}

	var events []Message
	for {
		msg, err := readMessage(s.reader)
		if err != nil {
			return nil, nil, s.fail(ctx, op, err)
		}
		if msg.ActionID() != id {
			s.log.Debug("evento ajeno ignorado", "event", msg.Type())
			continue
		}
		if msg.Type() == complete || strings.EqualFold(msg.Get("EventList"), "Complete") {
			return resp, events, nil
		}
		events = append(events, *msg)
	}
}

// armDeadline fija el deadline del socket al menor entre Timeout y el del
// contexto, y lo adelanta si el contexto se cancela.
func (s *Session) armDeadline(ctx context.Context) func() {
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		s.conn.SetDeadline(time.Time{})
	}
}

// fail marca la sesión como inutilizable: tras un error de lectura o
// escritura el flujo queda desincronizado.
func (s *Session) fail(ctx context.Context, op string, err error) error {
	s.broken = err
	return s.classify(ctx, op, err)
}

func (s *Session) classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.New(apperr.KindTimeout, op, ctx.Err())
	case ctx.Err() != nil:
		return apperr.New(apperr.KindConnection, op, ctx.Err())
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperr.New(apperr.KindTimeout, op, err)
	case errors.Is(err, errMalformed), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.New(apperr.KindProtocol, op, err)
	default:
		return apperr.New(apperr.KindConnection, op, err)
	}
}

// Close envía Logoff sin esperar respuesta y cierra el socket.
// Es idempotente y admite una sesión nil.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	var err error
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		if s.broken == nil {
			s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			if frame, encErr := NewAction("Logoff").encode(s.newID()); encErr == nil {
				s.writer.WriteString(frame)
				s.writer.Flush()
			}
		}
		err = s.conn.Close()
		s.log.Info("desconectado")
	})
	return err
}
