package store

// schemaStatements is the normalized relational schema spec.md §6
// describes: tables for rooms, exits, regions, room-regions, prototypes,
// objects, player records, player-objects, room-objects, scripts, and four
// hook tables, each keyed by the host's domain ID. The object table's
// override columns are nullable; readers coalesce with the prototype row
// (see load.go).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT UNSIGNED PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exits (
		room_id BIGINT UNSIGNED NOT NULL,
		direction VARCHAR(16) NOT NULL,
		destination_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (room_id, direction)
	)`,
	`CREATE TABLE IF NOT EXISTS room_regions (
		room_id BIGINT UNSIGNED NOT NULL,
		region VARCHAR(64) NOT NULL,
		PRIMARY KEY (room_id, region)
	)`,
	`CREATE TABLE IF NOT EXISTS prototypes (
		id BIGINT UNSIGNED PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		flags TINYINT UNSIGNED NOT NULL DEFAULT 0,
		keywords TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS objects (
		id BIGINT UNSIGNED PRIMARY KEY,
		prototype_id BIGINT UNSIGNED NOT NULL,
		inherit_scripts BOOLEAN NOT NULL DEFAULT TRUE,
		name TEXT NULL,
		description TEXT NULL,
		flags TINYINT UNSIGNED NULL,
		keywords TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		name VARCHAR(32) PRIMARY KEY,
		password_hash TEXT NOT NULL,
		id BIGINT UNSIGNED NOT NULL UNIQUE,
		room_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		flags TINYINT UNSIGNED NOT NULL DEFAULT 0,
		strength INT NOT NULL DEFAULT 10,
		agility INT NOT NULL DEFAULT 10,
		intellect INT NOT NULL DEFAULT 10,
		health_current INT NOT NULL DEFAULT 20,
		health_max INT NOT NULL DEFAULT 20,
		access_issued_at DATETIME NULL,
		refresh_issued_at DATETIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS player_objects (
		player_id BIGINT UNSIGNED NOT NULL,
		object_id BIGINT UNSIGNED NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (player_id, object_id)
	)`,
	`CREATE TABLE IF NOT EXISTS room_objects (
		room_id BIGINT UNSIGNED NOT NULL,
		object_id BIGINT UNSIGNED NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (room_id, object_id)
	)`,
	`CREATE TABLE IF NOT EXISTS scripts (
		name VARCHAR(64) PRIMARY KEY,
		trigger_name VARCHAR(32) NOT NULL,
		code MEDIUMTEXT NOT NULL,
		compile_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS room_hooks (
		room_id BIGINT UNSIGNED NOT NULL,
		script_name VARCHAR(64) NOT NULL,
		trigger_name VARCHAR(32) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (room_id, script_name, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS object_hooks (
		object_id BIGINT UNSIGNED NOT NULL,
		script_name VARCHAR(64) NOT NULL,
		trigger_name VARCHAR(32) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (object_id, script_name, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS prototype_hooks (
		prototype_id BIGINT UNSIGNED NOT NULL,
		script_name VARCHAR(64) NOT NULL,
		trigger_name VARCHAR(32) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (prototype_id, script_name, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS player_hooks (
		player_id BIGINT UNSIGNED NOT NULL,
		script_name VARCHAR(64) NOT NULL,
		trigger_name VARCHAR(32) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (player_id, script_name, kind)
	)`,
}
