package sale

import (
	"fmt"
	"sync"
	"time"
)

// NumberGenerator gera números de venda no formato S + yyMMdd + 6 dígitos dos milissegundos.
// Dentro do processo nunca repete o último número; entre processos a unicidade fica com o índice
// único de sale_number no banco.
type NumberGenerator struct {
	mu        sync.Mutex
	lastMilli int64
}

// NewNumberGenerator cria uma nova instância de NumberGenerator
func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{}
}

// Next returns the number for a sale committed at now.
func (g *NumberGenerator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms <= g.lastMilli {
		ms = g.lastMilli + 1
	}
	g.lastMilli = ms

	return fmt.Sprintf("S%s%06d", now.Format("060102"), ms%1_000_000)
}
