// internal/server/directory.go
package server

import (
	"context"

	"github.com/google/uuid"

	"stocktrack/internal/notification"
	"stocktrack/internal/transaction"
	"stocktrack/internal/user"
)

// Directory adapts the user service to the views the transaction
// engine and the notification dispatcher need.
type Directory struct {
	users user.Service
}

func NewDirectory(users user.Service) *Directory {
	return &Directory{users: users}
}

func (d *Directory) Person(ctx context.Context, id uuid.UUID) (*transaction.Person, error) {
	u, err := d.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &transaction.Person{ID: u.ID, Name: u.Name, Role: u.Role}, nil
}

func (d *Directory) ListItemManagers(ctx context.Context) ([]*transaction.Person, error) {
	managers, err := d.users.ListItemManagers(ctx)
	if err != nil {
		return nil, err
	}
	people := make([]*transaction.Person, 0, len(managers))
	for _, m := range managers {
		people = append(people, &transaction.Person{ID: m.ID, Name: m.Name, Role: m.Role})
	}
	return people, nil
}

func (d *Directory) ResolveRecipient(ctx context.Context, id uuid.UUID) (*notification.Recipient, error) {
	u, err := d.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &notification.Recipient{Name: u.Name, Email: u.Email}, nil
}
