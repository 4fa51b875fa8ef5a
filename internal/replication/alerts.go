package replication

import (
	"context"

	"copycontrol/internal/models"
	"copycontrol/pkg/config"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Alerter surfaces permanently failed replication legs to operators.
type Alerter interface {
	ReplicationFailed(ctx context.Context, key RecordKey, reason string)
}

type operatorAlerter struct {
	db  *gorm.DB
	pub *config.Publisher // optional
	log *logrus.Entry
}

// NewAlerter writes alerts to system_logs and, when a publisher is
// given, to the operator_alerts queue. Alerting is best effort and never
// fails the replication path.
func NewAlerter(db *gorm.DB, pub *config.Publisher) Alerter {
	return &operatorAlerter{
		db:  db,
		pub: pub,
		log: logrus.WithField("module", "replication"),
	}
}

func (a *operatorAlerter) ReplicationFailed(ctx context.Context, key RecordKey, reason string) {
	a.log.WithFields(logrus.Fields{
		"master_trade_id":     key.MasterTradeID,
		"event_type":          key.EventType,
		"follower_account_id": key.FollowerAccountID,
		"reason":              reason,
	}).Error("replication permanently failed")

	entry := models.SystemLog{
		Level:   "ERROR",
		Module:  "replication",
		Message: "replication permanently failed: " + reason,
		Meta: models.JSONMap{
			"master_trade_id":     key.MasterTradeID,
			"event_type":          key.EventType,
			"follower_account_id": key.FollowerAccountID,
		},
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		a.log.Errorf("failed to persist operator alert: %v", err)
	}

	if a.pub != nil {
		alert := map[string]interface{}{
			"master_trade_id":     key.MasterTradeID,
			"event_type":          key.EventType,
			"follower_account_id": key.FollowerAccountID,
			"reason":              reason,
		}
		if err := a.pub.Publish(config.QueueOperatorAlerts, alert); err != nil {
			a.log.Errorf("failed to publish operator alert: %v", err)
		}
	}
}
