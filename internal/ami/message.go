package ami

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header es un par clave/valor de una acción AMI
type Header struct {
	Key   string
	Value string
}

// Action representa una acción AMI saliente
type Action struct {
	Name    string
	Headers []Header
}

// NewAction crea una acción a partir de pares clave, valor
func NewAction(name string, kv ...string) Action {
	a := Action{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Headers = append(a.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return a
}

// encode serializa la acción con su ActionID, terminada en línea vacía
func (a Action) encode(actionID string) (string, error) {
	if a.Name == "" || strings.ContainsAny(a.Name, ": \t\r\n") {
		return "", fmt.Errorf("nombre de acción inválido %q", a.Name)
	}
	var b strings.Builder
	if err := writeHeader(&b, "Action", a.Name); err != nil {
		return "", err
	}
	if err := writeHeader(&b, "ActionID", actionID); err != nil {
		return "", err
	}
	for _, h := range a.Headers {
		if err := writeHeader(&b, h.Key, h.Value); err != nil {
			return "", err
		}
	}
	b.WriteString("\r\n")
	return b.String(), nil
}

func writeHeader(b *strings.Builder, key, value string) error {
	if key == "" || strings.ContainsAny(key, ":\r\n") || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("header inválido %q", key)
	}
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
	return nil
}

// Message representa una respuesta o evento AMI
type Message struct {
	Fields map[string]string
	Keys   []string
}

// Get devuelve el valor de una clave, vacío si no existe
func (m *Message) Get(key string) string {
	return m.Fields[key]
}

// Type devuelve el nombre del evento, vacío para respuestas
func (m *Message) Type() string {
	return m.Fields["Event"]
}

// IsResponse reporta si el mensaje es la respuesta a una acción
func (m *Message) IsResponse() bool {
	_, ok := m.Fields["Response"]
	return ok
}

// ActionID devuelve el identificador de correlación
func (m *Message) ActionID() string {
	return m.Fields["ActionID"]
}

var errMalformed = errors.New("trama AMI mal formada")

// readMessage lee una trama completa "Key: Value" terminada en línea vacía.
// Las líneas vacías previas a la trama se ignoran; si una clave se repite
// se conserva la primera.
func readMessage(r *bufio.Reader) (*Message, error) {
	msg := &Message{Fields: make(map[string]string)}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && (len(msg.Keys) > 0 || line != "") {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(msg.Keys) == 0 {
				continue
			}
			return msg, nil
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", errMalformed, line)
		}
		value = strings.TrimPrefix(value, " ")
		if _, dup := msg.Fields[key]; !dup {
			msg.Fields[key] = value
			msg.Keys = append(msg.Keys, key)
		}
	}
}
