// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

// schema is the complete DDL. Every statement is idempotent so
// EnsureSchema can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS players (
    id            BIGSERIAL PRIMARY KEY,
    name          TEXT NOT NULL,
    federation_id TEXT,
    peak_rating   INT
);

CREATE UNIQUE INDEX IF NOT EXISTS players_name_fed_uniq
    ON players (name, COALESCE(federation_id, ''));

CREATE TABLE IF NOT EXISTS games (
    id            BIGSERIAL PRIMARY KEY,
    white_id      BIGINT NOT NULL REFERENCES players(id),
    black_id      BIGINT NOT NULL REFERENCES players(id),
    event         TEXT,
    site          TEXT,
    round         TEXT,
    played_on     DATE,
    result        TEXT NOT NULL,
    eco_code      TEXT,
    opening_slug  TEXT,
    opening_name  TEXT,
    white_rating  INT,
    black_rating  INT,
    pgn           TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS games_dedup_uniq
    ON games (white_id, black_id, COALESCE(played_on, '0001-01-01'::date), md5(pgn));

CREATE INDEX IF NOT EXISTS games_opening_slug_idx ON games (opening_slug);
CREATE INDEX IF NOT EXISTS games_eco_code_idx     ON games (eco_code);
CREATE INDEX IF NOT EXISTS games_white_rating_idx ON games (white_rating);
CREATE INDEX IF NOT EXISTS games_black_rating_idx ON games (black_rating);
CREATE INDEX IF NOT EXISTS games_played_on_idx    ON games (played_on);

CREATE TABLE IF NOT EXISTS positions (
    id           BIGSERIAL PRIMARY KEY,
    game_id      BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
    ply          INT NOT NULL CHECK (ply >= 1),
    move_number  INT NOT NULL,
    side_to_move TEXT NOT NULL CHECK (side_to_move IN ('white', 'black')),
    san          TEXT NOT NULL,
    fen          TEXT NOT NULL,
    vector_id    TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS positions_game_ply_uniq ON positions (game_id, ply);

CREATE TABLE IF NOT EXISTS embedding_jobs (
    id           BIGSERIAL PRIMARY KEY,
    position_id  BIGINT NOT NULL UNIQUE REFERENCES positions(id) ON DELETE CASCADE,
    status       TEXT NOT NULL DEFAULT 'pending'
                 CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
    attempts     INT NOT NULL DEFAULT 0,
    enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at   TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    last_error   TEXT
);

CREATE INDEX IF NOT EXISTS embedding_jobs_status_enqueued_idx
    ON embedding_jobs (status, enqueued_at);
`
