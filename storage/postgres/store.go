// Package pgstore persists wallpapers, download events and rate limit
// settings in Postgres.
package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PaulFidika/wallkit/catalog"
	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/ratelimit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func New(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) wallpapersTable() string { return s.schema + ".wallpapers" }
func (s *Store) downloadsTable() string  { return s.schema + ".downloads" }
func (s *Store) settingsTable() string   { return s.schema + ".rate_limit_settings" }

// GetResource loads a wallpaper. Ids that are not UUIDs cannot exist and
// report catalog.ErrNotFound.
func (s *Store) GetResource(ctx context.Context, id string) (*catalog.Resource, error) {
	wid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, catalog.ErrNotFound
	}
	var (
		title                 string
		premium               bool
		standard, high, ultra *string
		count                 int64
	)
	err = s.pg.QueryRow(ctx,
		`SELECT title, is_premium, image_url, hd_image_url, uhd_image_url, download_count
		   FROM `+s.wallpapersTable()+` WHERE id=$1 LIMIT 1`, wid,
	).Scan(&title, &premium, &standard, &high, &ultra, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res := &catalog.Resource{
		ID:            wid.String(),
		Title:         title,
		Premium:       premium,
		Sources:       map[catalog.Resolution]string{},
		DownloadCount: count,
	}
	for r, u := range map[catalog.Resolution]*string{catalog.Standard: standard, catalog.High: high, catalog.Ultra: ultra} {
		if u != nil {
			res.Sources[r] = *u
		}
	}
	return res, nil
}

func (s *Store) InsertDownload(ctx context.Context, ev core.DownloadEvent) error {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		id = uuid.New()
	}
	var ip, ua *string
	if ev.IPAddress != "" {
		ip = &ev.IPAddress
	}
	if ev.UserAgent != "" {
		ua = &ev.UserAgent
	}
	_, err = s.pg.Exec(ctx,
		`INSERT INTO `+s.downloadsTable()+` (id, user_id, wallpaper_id, resolution, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		id, ev.UserID, ev.ResourceID, ev.Resolution, ip, ua, ev.CreatedAt,
	)
	return err
}

// IncrementDownloads bumps the counter in a single statement so concurrent
// grants cannot overwrite each other.
func (s *Store) IncrementDownloads(ctx context.Context, resourceID string) error {
	tag, err := s.pg.Exec(ctx,
		`UPDATE `+s.wallpapersTable()+` SET download_count = download_count + 1 WHERE id=$1`, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) CountDownloadsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pg.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+s.downloadsTable()+` WHERE user_id=$1 AND created_at >= $2`, userID, since,
	).Scan(&n)
	return n, err
}

func (s *Store) ListDownloads(ctx context.Context, userID string, page, pageSize int) ([]core.DownloadEvent, error) {
	rows, err := s.pg.Query(ctx,
		`SELECT id, user_id, wallpaper_id, resolution, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		   FROM `+s.downloadsTable()+`
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []core.DownloadEvent{}
	for rows.Next() {
		var ev core.DownloadEvent
		var id, uid, wid uuid.UUID
		if err := rows.Scan(&id, &uid, &wid, &ev.Resolution, &ev.IPAddress, &ev.UserAgent, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ID, ev.UserID, ev.ResourceID = id.String(), uid.String(), wid.String()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) GetSettings(ctx context.Context, name string) (ratelimit.Settings, bool, error) {
	var st ratelimit.Settings
	var windowSeconds int64
	var updated time.Time
	err := s.pg.QueryRow(ctx,
		`SELECT max_requests, window_seconds, fail_closed, updated_at FROM `+s.settingsTable()+` WHERE name=$1`, name,
	).Scan(&st.Limit, &windowSeconds, &st.FailClosed, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Settings{}, false, nil
	}
	if err != nil {
		return ratelimit.Settings{}, false, err
	}
	st.Window = time.Duration(windowSeconds) * time.Second
	st.UpdatedAt = &updated
	return st, true, nil
}

func (s *Store) PutSettings(ctx context.Context, name string, st ratelimit.Settings) error {
	updated := time.Now().UTC()
	if st.UpdatedAt != nil {
		updated = *st.UpdatedAt
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.settingsTable()+` (name, max_requests, window_seconds, fail_closed, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET
		   max_requests = EXCLUDED.max_requests,
		   window_seconds = EXCLUDED.window_seconds,
		   fail_closed = EXCLUDED.fail_closed,
		   updated_at = EXCLUDED.updated_at`,
		name, st.Limit, int64(st.Window/time.Second), st.FailClosed, updated,
	)
	return err
}

// ReconcileDownloadCounts raises download_count to the number of logged
// events wherever the counter fell behind. Counters are never lowered.
func (s *Store) ReconcileDownloadCounts(ctx context.Context) (int64, error) {
	tag, err := s.pg.Exec(ctx,
		`UPDATE `+s.wallpapersTable()+` w
		    SET download_count = c.n
		   FROM (SELECT wallpaper_id, COUNT(*) AS n FROM `+s.downloadsTable()+` GROUP BY wallpaper_id) c
		  WHERE c.wallpaper_id = w.id AND w.download_count < c.n`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
