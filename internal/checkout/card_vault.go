package checkout

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// defaultCardSecretTTL: сколько номер карты и CVV живут в памяти без обращений к сессии.
const defaultCardSecretTTL = 30 * time.Minute

type cardSecret struct {
	number  string
	cvv     string
	touched time.Time
}

// cardVault держит номер карты и CVV в памяти процесса, в хранилище они не попадают.
// После рестарта или на другом инстансе данные карты придётся ввести заново.
type cardVault struct {
	mu      sync.Mutex
	ttl     time.Duration
	secrets map[string]cardSecret
}

func newCardVault(ttl time.Duration) *cardVault {
	if ttl <= 0 {
		ttl = defaultCardSecretTTL
	}
	return &cardVault{ttl: ttl, secrets: make(map[string]cardSecret)}
}

// restore дописывает номер и CVV в загруженную из хранилища сессию.
func (v *cardVault) restore(c *domain.Checkout, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	secret, ok := v.secrets[c.ID]
	if !ok {
		return
	}
	if now.Sub(secret.touched) > v.ttl || c.Payment.Card == nil {
		delete(v.secrets, c.ID)
		return
	}
	c.Payment.Card.Number = secret.number
	c.Payment.Card.CVV = secret.cvv
}

// keep запоминает номер и CVV из нового состояния, а пустые значения удаляют запись.
func (v *cardVault) keep(c domain.Checkout, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.sweepLocked(now)
	if !c.Payment.Card.HasSecrets() {
		delete(v.secrets, c.ID)
		return
	}
	v.secrets[c.ID] = cardSecret{
		number:  c.Payment.Card.Number,
		cvv:     c.Payment.Card.CVV,
		touched: now,
	}
}

func (v *cardVault) sweepLocked(now time.Time) {
	for id, secret := range v.secrets {
		if now.Sub(secret.touched) > v.ttl {
			delete(v.secrets, id)
		}
	}
}

func (v *cardVault) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.secrets)
}
