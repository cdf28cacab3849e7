package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nodewire/nodewire/pkg/mail"
)

// ConnectionNotification carries the context for a connection-request email:
// who should hear about it, which node was targeted, and who is inviting.
type ConnectionNotification struct {
	Recipients      []string
	TargetNodeName  string
	TargetOrgName   string
	InvitingOrgName string
}

// ConnectionNotifier delivers connection-request notifications. Delivery is
// best effort: the state machine logs failures and never lets them affect the
// outcome of a transition.
type ConnectionNotifier interface {
	ConnectionRequested(ctx context.Context, notification ConnectionNotification) error
}

// EmailConnectionNotifier sends connection-request notifications through a Mailer.
type EmailConnectionNotifier struct {
	mailer mail.Mailer
}

// NewEmailConnectionNotifier constructs an EmailConnectionNotifier.
func NewEmailConnectionNotifier(mailer mail.Mailer) (*EmailConnectionNotifier, error) {
	if mailer == nil {
		return nil, errors.New("connection notifier: mailer is required")
	}
	return &EmailConnectionNotifier{mailer: mailer}, nil
}

// ConnectionRequested emails the target organization's administrators about a
// pending invitation.
func (n *EmailConnectionNotifier) ConnectionRequested(ctx context.Context, notification ConnectionNotification) error {
	if len(notification.Recipients) == 0 {
		return errors.New("connection notifier: no recipients resolved")
	}

	subject := fmt.Sprintf("Connection request for node %q", notification.TargetNodeName)
	body := fmt.Sprintf(
		"Organization %s has requested a connection to node %q of %s.\n\n"+
			"Review the pending invitation in the partner directory to accept or reject it.\n",
		notification.InvitingOrgName, notification.TargetNodeName, notification.TargetOrgName,
	)

	return n.mailer.Send(ctx, mail.Message{
		To:      notification.Recipients,
		Subject: subject,
		Body:    body,
	})
}
