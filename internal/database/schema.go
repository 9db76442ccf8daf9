package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; the MySQL driver does not
// accept multi-statement strings without multiStatements=true.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    CHAR(36)        NOT NULL,
		token_hash CHAR(64)        NOT NULL,
		expires_at DATETIME        NOT NULL,
		revoked_at DATETIME        NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_token_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS user_profiles (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		user_id    CHAR(36)     NOT NULL,
		name       VARCHAR(120) NOT NULL,
		wallet     VARCHAR(64)  NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_profiles_user (user_id),
		CONSTRAINT fk_profiles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id                      CHAR(36)       NOT NULL PRIMARY KEY,
		name                    VARCHAR(120)   NOT NULL,
		description             TEXT           NOT NULL,
		total_price             DECIMAL(14,2)  NOT NULL DEFAULT 0,
		is_open                 BOOLEAN        NOT NULL DEFAULT TRUE,
		is_ready_for_settlement BOOLEAN        NOT NULL DEFAULT FALSE,
		has_settled             BOOLEAN        NOT NULL DEFAULT FALSE,
		created_at              DATETIME       NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at              DATETIME       NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT chk_rooms_price CHECK (total_price >= 0),
		CONSTRAINT chk_rooms_settled CHECK (has_settled = FALSE OR is_ready_for_settlement = TRUE)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS participants (
		id         CHAR(36)                NOT NULL PRIMARY KEY,
		room_id    CHAR(36)                NOT NULL,
		user_id    CHAR(36)                NOT NULL,
		profile_id CHAR(36)                NOT NULL,
		role       ENUM('owner','normal')  NOT NULL DEFAULT 'normal',
		weight     INT                     NOT NULL DEFAULT 1,
		payed      BOOLEAN                 NOT NULL DEFAULT FALSE,
		created_at DATETIME(3)             NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_participants_room_user (room_id, user_id),
		KEY idx_participants_user (user_id),
		CONSTRAINT chk_participants_weight CHECK (weight > 0),
		CONSTRAINT fk_participants_room FOREIGN KEY (room_id) REFERENCES rooms(id),
		CONSTRAINT fk_participants_user FOREIGN KEY (user_id) REFERENCES users(id),
		CONSTRAINT fk_participants_profile FOREIGN KEY (profile_id) REFERENCES user_profiles(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payments (
		id             CHAR(36)                               NOT NULL PRIMARY KEY,
		payload_id     CHAR(36)                               NOT NULL,
		participant_id CHAR(36)                               NULL,
		amount         DECIMAL(14,2)                          NOT NULL,
		destination    VARCHAR(64)                            NOT NULL,
		status         ENUM('PENDING','COMPLETED','FAILED')   NOT NULL DEFAULT 'PENDING',
		network_id     VARCHAR(32)                            NULL,
		transaction_id VARCHAR(128)                           NULL,
		account        VARCHAR(64)                            NULL,
		created_at     DATETIME(3)                            NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at     DATETIME(3)                            NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_payments_payload (payload_id),
		KEY idx_payments_participant (participant_id),
		CONSTRAINT fk_payments_participant FOREIGN KEY (participant_id) REFERENCES participants(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS signature_requests (
		id             CHAR(36)                               NOT NULL PRIMARY KEY,
		payload_id     CHAR(36)                               NOT NULL,
		profile_id     CHAR(36)                               NOT NULL,
		status         ENUM('PENDING','COMPLETED','FAILED')   NOT NULL DEFAULT 'PENDING',
		network_id     VARCHAR(32)                            NULL,
		transaction_id VARCHAR(128)                           NULL,
		account        VARCHAR(64)                            NULL,
		created_at     DATETIME                               NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME                               NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_signature_payload (payload_id),
		CONSTRAINT fk_signature_profile FOREIGN KEY (profile_id) REFERENCES user_profiles(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// RunMigrations creates any missing tables.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
