package domain

import "errors"

var (
	ErrLockHeld            = errors.New("lock is held by another owner")
	ErrLockLost            = errors.New("lock was taken over by another owner")
	ErrDrainInProgress     = errors.New("drain already in progress")
	ErrProjectNotScheduled = errors.New("project is not scheduled")
	ErrWrongProjectName    = errors.New("openpype and shotgrid project name does not correspond")
	ErrProjectNotFound     = errors.New("project not found")
)
