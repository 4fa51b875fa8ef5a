package execution

import (
	"context"
	"fmt"
	"time"

	dbconfig "copycontrol/pkg/config"

	log "github.com/sirupsen/logrus"
)

// CreditMessage is the payload published to the wallet credits queue.
// The wallet service dedupes on Reference, so a redelivered message
// never double-credits.
type CreditMessage struct {
	MasterID  uint    `json:"master_id"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
	IssuedAt  int64   `json:"issued_at"`
}

// WalletPublisher issues commission credits by publishing to the
// wallet service's queue.
type WalletPublisher struct {
	pub *dbconfig.Publisher
}

// NewWalletPublisher builds a WalletPublisher.
func NewWalletPublisher(pub *dbconfig.Publisher) *WalletPublisher {
	return &WalletPublisher{pub: pub}
}

// Credit publishes a credit instruction for the master's wallet.
func (w *WalletPublisher) Credit(ctx context.Context, masterID uint, amount float64, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("refusing to credit non-positive amount %f", amount)
	}

	msg := CreditMessage{
		MasterID:  masterID,
		Amount:    amount,
		Reference: reference,
		IssuedAt:  time.Now().Unix(),
	}
	if err := w.pub.Publish(dbconfig.QueueWalletCredits, msg); err != nil {
		return fmt.Errorf("publish wallet credit %s: %w", reference, err)
	}

	log.WithFields(log.Fields{
		"master_id": masterID,
		"amount":    amount,
		"reference": reference,
	}).Info("Wallet credit published")
	return nil
}
