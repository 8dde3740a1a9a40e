package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progression aggregates and point ledger
-- Version: 001

-- One row per user. The row is the write serialization point: every
-- mutating command locks it with SELECT FOR UPDATE.
CREATE TABLE IF NOT EXISTS progression_aggregates (
    user_id UUID PRIMARY KEY,
    total_points INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    quizzes_completed INTEGER NOT NULL DEFAULT 0,
    checklists_completed INTEGER NOT NULL DEFAULT 0,
    notes_created INTEGER NOT NULL DEFAULT 0,
    items_read INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_points CHECK (total_points >= 0),
    CONSTRAINT valid_current_streak CHECK (current_streak >= 0),
    CONSTRAINT valid_longest_streak CHECK (longest_streak >= current_streak),
    CONSTRAINT valid_counters CHECK (
        quizzes_completed >= 0 AND checklists_completed >= 0
        AND notes_created >= 0 AND items_read >= 0
    )
);

-- Append-only point ledger. The aggregate total must equal the ledger sum;
-- the reconciliation job repairs drift.
CREATE TABLE IF NOT EXISTS point_ledger (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES progression_aggregates(user_id),
    points INTEGER NOT NULL,
    reason VARCHAR(40) NOT NULL,
    reference_id VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_points CHECK (points > 0),
    CONSTRAINT valid_reason CHECK (reason IN (
        'quiz_correct', 'checklist_completed', 'note_created', 'item_read',
        'streak_bonus', 'achievement_bonus', 'reconciliation'
    ))
);

CREATE INDEX IF NOT EXISTS idx_point_ledger_user_created
    ON point_ledger(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_ledger_reason ON point_ledger(reason);
`

const migration001Down = `
DROP TABLE IF EXISTS point_ledger;
DROP TABLE IF EXISTS progression_aggregates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create achievement catalog and awards
-- Version: 002

-- Catalog of achievement definitions. Seeded from the built-in catalog on
-- startup; operators may add rows without a redeploy.
CREATE TABLE IF NOT EXISTS achievement_definitions (
    id VARCHAR(50) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(40) NOT NULL DEFAULT '',
    rarity VARCHAR(20) NOT NULL DEFAULT 'common',
    metric VARCHAR(30) NOT NULL,
    threshold INTEGER NOT NULL,
    reward_points INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_rarity CHECK (rarity IN ('common', 'uncommon', 'rare', 'epic', 'legendary')),
    CONSTRAINT valid_metric CHECK (metric IN (
        'points', 'streak', 'items_read', 'quizzes_completed',
        'checklists_completed', 'notes_created',
        'perfect_quiz', 'early_bird', 'night_owl'
    )),
    CONSTRAINT positive_threshold CHECK (threshold > 0),
    CONSTRAINT valid_reward CHECK (reward_points >= 0)
);

-- One award per (user, achievement). The unique constraint is the final
-- arbiter of award idempotency under concurrent writers.
CREATE TABLE IF NOT EXISTS achievement_awards (
    user_id UUID NOT NULL REFERENCES progression_aggregates(user_id),
    achievement_id VARCHAR(50) NOT NULL,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    seen BOOLEAN NOT NULL DEFAULT FALSE,

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_awards_user_earned
    ON achievement_awards(user_id, earned_at DESC);
CREATE INDEX IF NOT EXISTS idx_awards_unseen
    ON achievement_awards(user_id) WHERE NOT seen;
`

const migration002Down = `
DROP TABLE IF EXISTS achievement_awards;
DROP TABLE IF EXISTS achievement_definitions;
`
