package ircore

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// snapshotServer, snapshotChannel, and snapshotNick are the GORM models
// backing Core.SaveSnapshot/LoadSnapshot. They mirror the Server,
// Channel, and Nick roster fields that matter for resuming a client
// across a process restart: identity, channel membership buffers
// (including parted ones, so Part survives the round trip), and the
// away/account bits of the nick cache. Runtime-only state (sockets,
// CAP negotiation, batches, redirects, out-queues) is intentionally
// not persisted; it is rebuilt by reconnecting.
type snapshotServer struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex"`
	CurrentNick string
	CaseMap     int
	ChanTypes   string

	Channels []snapshotChannel `gorm:"foreignKey:ServerName;references:Name"`
	Nicks    []snapshotNick    `gorm:"foreignKey:ServerName;references:Name"`
}

type snapshotChannel struct {
	gorm.Model
	ServerName string `gorm:"index"`
	Name       string
	Type       int
	Topic      string
	TopicSetBy string
	Key        string
	Part       bool
}

type snapshotNick struct {
	gorm.Model
	ServerName string `gorm:"index"`
	Name       string
	Ident      string
	Host       string
	Account    string
	Away       bool
	Realname   string
	FirstSeen  time.Time
}

func openSnapshotDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// SaveSnapshot writes every registered server's identity, channel
// buffers, and nick cache to a sqlite database at path, replacing any
// rows already present for that server name. It does not touch
// connection state; a server is reconnected independently after load.
func (c *Core) SaveSnapshot(path string) error {
	db, err := openSnapshotDB(path)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&snapshotServer{}, &snapshotChannel{}, &snapshotNick{}); err != nil {
		return err
	}

	for _, srv := range c.Servers() {
		row := snapshotServer{
			Name:        srv.Name(),
			CurrentNick: srv.CurrentNick(),
			CaseMap:     int(srv.casemap()),
			ChanTypes:   srv.ChanTypes(),
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Unscoped().Where("name = ?", row.Name).Delete(&snapshotServer{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("server_name = ?", row.Name).Delete(&snapshotChannel{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("server_name = ?", row.Name).Delete(&snapshotNick{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}

			for _, ch := range srv.Channels() {
				rec := snapshotChannel{
					ServerName: row.Name,
					Name:       ch.Name,
					Type:       int(ch.Type),
					Topic:      ch.Topic,
					TopicSetBy: ch.TopicSetBy,
					Key:        ch.Key,
					Part:       ch.Part,
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
			}

			for entry := range srv.nicks.IterBuffered() {
				n := entry.Val
				rec := snapshotNick{
					ServerName: row.Name,
					Name:       n.Name,
					Ident:      n.Ident,
					Host:       n.Host,
					Account:    n.Account,
					Away:       n.Away,
					Realname:   n.Realname,
					FirstSeen:  n.FirstSeen,
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// LoadSnapshot restores channel buffers and the nick cache for every
// server row found in path whose name matches an already-registered
// Server (via AddServer). Servers present in the snapshot but not
// registered in c are skipped; connection is left to the caller.
func (c *Core) LoadSnapshot(path string) error {
	db, err := openSnapshotDB(path)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&snapshotServer{}, &snapshotChannel{}, &snapshotNick{}); err != nil {
		return err
	}

	var rows []snapshotServer
	if err := db.Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		srv := c.Server(row.Name)
		if srv == nil {
			continue
		}

		srv.mu.Lock()
		if row.CurrentNick != "" {
			srv.currentNick = row.CurrentNick
		}
		srv.caseMap = CaseMapping(row.CaseMap)
		if row.ChanTypes != "" {
			srv.chanTypes = row.ChanTypes
		}
		srv.mu.Unlock()

		var chans []snapshotChannel
		if err := db.Where("server_name = ?", row.Name).Find(&chans).Error; err != nil {
			return err
		}
		for _, rec := range chans {
			ch := srv.channels.create(rec.Name, ChannelType(rec.Type), "", srv.Name())
			ch.Topic = rec.Topic
			ch.TopicSetBy = rec.TopicSetBy
			ch.Key = rec.Key
			ch.Part = rec.Part
		}

		var nicks []snapshotNick
		if err := db.Where("server_name = ?", row.Name).Find(&nicks).Error; err != nil {
			return err
		}
		for _, rec := range nicks {
			srv.trackNick(&Nick{
				Name:      rec.Name,
				Ident:     rec.Ident,
				Host:      rec.Host,
				Account:   rec.Account,
				Away:      rec.Away,
				Realname:  rec.Realname,
				FirstSeen: rec.FirstSeen,
			})
		}
	}

	return nil
}
