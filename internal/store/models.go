package store

import "time"

type roomRow struct {
	ID          uint64
	Name        string
	Description string
}

type exitRow struct {
	Direction     string
	DestinationID uint64
}

type protoRow struct {
	ID          uint64
	Name        string
	Description string
	Flags       uint8
	Keywords    string
}

// objectRow's override fields are pointers so nil means "inherit from
// prototype" — the object table's nullable override columns (spec.md §6).
type objectRow struct {
	ID             uint64
	PrototypeID    uint64
	InheritScripts bool
	Name           *string
	Description    *string
	Flags          *uint8
	Keywords       *string
}

type playerRow struct {
	Name            string
	PasswordHash    string
	ID              uint64
	RoomID          uint64
	Flags           uint8
	Strength        int
	Agility         int
	Intellect       int
	HealthCurrent   int
	HealthMax       int
	AccessIssuedAt  *time.Time
	RefreshIssuedAt *time.Time
}

type scriptRow struct {
	Name         string
	Trigger      string
	Code         string
	CompileError string
}

type hookRow struct {
	ScriptName string
	Trigger    string
	Kind       string
}
