package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/crypto"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
)

type connectionFixture struct {
	db        *gorm.DB
	svc       *NodeConnectionService
	orgSvc    *OrganizationService
	notifier  *mockNotifier
	orgOne    models.Organization
	orgTwo    models.Organization
	nodeOne   models.Node
	nodeTwo   models.Node
	accessOne policies.AccessContext
	accessTwo policies.AccessContext
}

func newConnectionFixture(t *testing.T) *connectionFixture {
	t.Helper()

	db := openServiceTestDB(t)
	notifier := &mockNotifier{}
	orgSvc, err := NewOrganizationService(db)
	require.NoError(t, err)
	svc, err := NewNodeConnectionService(db, crypto.Base64Codec{}, orgSvc, notifier)
	require.NoError(t, err)

	orgOne := createTestOrg(t, db, "org-one", nil)
	orgTwo := createTestOrg(t, db, "org-two", nil)

	return &connectionFixture{
		db:        db,
		svc:       svc,
		orgSvc:    orgSvc,
		notifier:  notifier,
		orgOne:    orgOne,
		orgTwo:    orgTwo,
		nodeOne:   createTestNode(t, db, orgOne.ID, "node-one", models.NodeExternal),
		nodeTwo:   createTestNode(t, db, orgTwo.ID, "node-two", models.NodeExternal),
		accessOne: accessFor(orgOne.ID, models.RoleAdministrator, policies.ConnectionsManageOwn),
		accessTwo: accessFor(orgTwo.ID, models.RoleAdministrator, policies.ConnectionsManageOwn),
	}
}

func (f *connectionFixture) invite(t *testing.T) *ConnectionDTO {
	t.Helper()

	dto, err := f.svc.CreateInvitation(context.Background(), f.accessOne, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.NoError(t, err)
	return dto
}

func TestCreateInvitation(t *testing.T) {
	f := newConnectionFixture(t)

	dto := f.invite(t)
	require.Equal(t, f.nodeOne.ID, dto.FromNodeID)
	require.Equal(t, f.nodeTwo.ID, dto.TargetNodeID)
	require.Equal(t, models.ConnectionPending, dto.Status)
	require.NotEmpty(t, dto.ClientID)
	require.Nil(t, dto.ExpiresAt)

	// The secret is stored encoded, never in the clear.
	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	decoded, err := crypto.Base64Codec{}.Decode(stored.ClientSecret)
	require.NoError(t, err)
	require.NotEqual(t, stored.ClientSecret, decoded)
}

func TestCreateInvitationRejectsSelfConnection(t *testing.T) {
	f := newConnectionFixture(t)

	_, err := f.svc.CreateInvitation(context.Background(), f.accessOne, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeOne.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateInvitationRequiresFromSideOwnership(t *testing.T) {
	f := newConnectionFixture(t)

	// org-two owns the target, not the inviter, so it cannot open this pair.
	_, err := f.svc.CreateInvitation(context.Background(), f.accessTwo, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// The all-connections policy crosses organization lines.
	rootAccess := accessFor(f.orgTwo.ID, models.RoleRoot, policies.ConnectionsManageAll)
	_, err = f.svc.CreateInvitation(context.Background(), rootAccess, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.NoError(t, err)
}

func TestCreateInvitationPairUniqueness(t *testing.T) {
	f := newConnectionFixture(t)
	f.invite(t)

	// Same direction.
	_, err := f.svc.CreateInvitation(context.Background(), f.accessOne, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	// Reverse direction hits the same normalized pair.
	_, err = f.svc.CreateInvitation(context.Background(), f.accessTwo, CreateInvitationInput{
		FromNodeID:   f.nodeTwo.ID,
		TargetNodeID: f.nodeOne.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestRejectedConnectionStillBlocksNewInvitations(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	require.NoError(t, f.svc.RejectInvitation(context.Background(), f.accessTwo, dto.ID))

	// The rejected row stays on the pair key, so the pair stays closed.
	_, err := f.svc.CreateInvitation(context.Background(), f.accessOne, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateInvitationNotifiesTargetAdministrators(t *testing.T) {
	f := newConnectionFixture(t)

	admin := models.User{
		OrganizationID: f.orgTwo.ID,
		Email:          "admin@org-two.example.com",
		PasswordHash:   "x",
		Role:           models.RoleAdministrator,
		Status:         models.UserActive,
	}
	disabled := models.User{
		OrganizationID: f.orgTwo.ID,
		Email:          "disabled@org-two.example.com",
		PasswordHash:   "x",
		Role:           models.RoleAdministrator,
		Status:         models.UserDisabled,
	}
	plain := models.User{
		OrganizationID: f.orgTwo.ID,
		Email:          "user@org-two.example.com",
		PasswordHash:   "x",
		Role:           models.RoleUser,
		Status:         models.UserActive,
	}
	require.NoError(t, f.db.Create(&admin).Error)
	require.NoError(t, f.db.Create(&disabled).Error)
	require.NoError(t, f.db.Create(&plain).Error)

	f.invite(t)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	require.Equal(t, []string{admin.Email}, call.Recipients)
	require.Equal(t, f.nodeTwo.Name, call.TargetNodeName)
	require.Equal(t, f.orgTwo.Name, call.TargetOrgName)
	require.Equal(t, f.orgOne.Name, call.InvitingOrgName)
}

func TestNotificationFailureDoesNotFailInvitation(t *testing.T) {
	f := newConnectionFixture(t)
	f.notifier.err = context.DeadlineExceeded

	dto := f.invite(t)
	require.Equal(t, models.ConnectionPending, dto.Status)
}

func TestListInvitations(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	out, err := f.svc.ListInvitations(context.Background(), f.accessTwo, f.nodeTwo.ID, ListQuery{})
	require.NoError(t, err)
	require.Len(t, out.Connections, 1)
	require.Equal(t, dto.ID, out.Connections[0].ID)
	require.Equal(t, int64(1), out.Pagination.Total)

	// Pending invitations target node-two, so node-one has none inbound.
	out, err = f.svc.ListInvitations(context.Background(), f.accessOne, f.nodeOne.ID, ListQuery{})
	require.NoError(t, err)
	require.Empty(t, out.Connections)

	// Listing another organization's inbound invitations is forbidden.
	_, err = f.svc.ListInvitations(context.Background(), f.accessOne, f.nodeTwo.ID, ListQuery{})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAcceptInvitation(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	before := time.Now()
	creds, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)
	require.Equal(t, dto.ID, creds.ConnectionID)
	require.Equal(t, dto.ClientID, creds.ClientID)
	require.NotEmpty(t, creds.ClientSecret)

	// The returned secret is the decoded form of what is stored.
	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, models.ConnectionAccepted, stored.Status)
	decoded, err := crypto.Base64Codec{}.Decode(stored.ClientSecret)
	require.NoError(t, err)
	require.Equal(t, creds.ClientSecret, decoded)

	require.NotNil(t, stored.ExpiresAt)
	require.WithinDuration(t, before.Add(connectionLifetime), *stored.ExpiresAt, time.Minute)
}

func TestAcceptInvitationIsTargetSideOnly(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	_, err := f.svc.AcceptInvitation(context.Background(), f.accessOne, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestProcessedInvitationReadsAsNotFound(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	// A second accept cannot tell the processed row from a missing one.
	_, err = f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.ErrorIs(t, f.svc.RejectInvitation(context.Background(), f.accessTwo, dto.ID), apperrors.ErrNotFound)
}

func TestRejectInvitationIsTerminal(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	require.NoError(t, f.svc.RejectInvitation(context.Background(), f.accessTwo, dto.ID))

	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, models.ConnectionRejected, stored.Status)
	require.Nil(t, stored.ExpiresAt)
}

func TestListConnectionsCoversBothSides(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	fromSide, err := f.svc.ListConnections(context.Background(), f.accessOne, f.nodeOne.ID, ListQuery{})
	require.NoError(t, err)
	require.Len(t, fromSide.Connections, 1)
	require.Equal(t, models.ConnectionAccepted, fromSide.Connections[0].Status)
	require.Equal(t, "node-one", fromSide.Connections[0].FromNodeName)
	require.Equal(t, "node-two", fromSide.Connections[0].TargetNodeName)

	targetSide, err := f.svc.ListConnections(context.Background(), f.accessTwo, f.nodeTwo.ID, ListQuery{})
	require.NoError(t, err)
	require.Len(t, targetSide.Connections, 1)
}

func TestRemoveConnection(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)
	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	outsider := accessFor(createTestOrg(t, f.db, "outsider", nil).ID,
		models.RoleAdministrator, policies.ConnectionsManageOwn)
	require.ErrorIs(t, f.svc.RemoveConnection(context.Background(), outsider, dto.ID), apperrors.ErrForbidden)

	// Either side of the pair may remove; here the target side does.
	require.NoError(t, f.svc.RemoveConnection(context.Background(), f.accessTwo, dto.ID))

	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, models.ConnectionRejected, stored.Status)

	require.ErrorIs(t, f.svc.RemoveConnection(context.Background(), f.accessTwo, dto.ID), apperrors.ErrNotFound)
}

func TestRemoveConnectionFromSide(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)
	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveConnection(context.Background(), f.accessOne, dto.ID))
}

func TestRotateCredentials(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)
	accepted, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	rotated, err := f.svc.RotateCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)
	require.NotEqual(t, accepted.ClientID, rotated.ClientID)
	require.NotEqual(t, accepted.ClientSecret, rotated.ClientSecret)

	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, rotated.ClientID, stored.ClientID)
	require.Equal(t, models.ConnectionAccepted, stored.Status)
	decoded, err := crypto.Base64Codec{}.Decode(stored.ClientSecret)
	require.NoError(t, err)
	require.Equal(t, rotated.ClientSecret, decoded)
}

func TestRotateAndGetCredentialsAreInviterSideOnly(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)
	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	// The target side received the secret at accept time and has no
	// retrieval or rotation path afterwards.
	_, err = f.svc.RotateCredentials(context.Background(), f.accessTwo, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.GetCredentials(context.Background(), f.accessTwo, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	creds, err := f.svc.GetCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)
	require.Equal(t, dto.ClientID, creds.ClientID)
	require.NotEmpty(t, creds.ClientSecret)
}

func TestCredentialOperationsRequireAcceptedStatus(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	// Still pending.
	_, err := f.svc.RotateCredentials(context.Background(), f.accessOne, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.GetCredentials(context.Background(), f.accessOne, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConnectionLifecycleEndToEnd(t *testing.T) {
	f := newConnectionFixture(t)

	dto := f.invite(t)
	require.Equal(t, models.ConnectionPending, dto.Status)

	creds, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	fetched, err := f.svc.GetCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)
	require.Equal(t, creds.ClientSecret, fetched.ClientSecret)

	rotated, err := f.svc.RotateCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)
	require.NotEqual(t, creds.ClientSecret, rotated.ClientSecret)

	require.NoError(t, f.svc.RemoveConnection(context.Background(), f.accessOne, dto.ID))

	listed, err := f.svc.ListConnections(context.Background(), f.accessOne, f.nodeOne.ID, ListQuery{})
	require.NoError(t, err)
	require.Empty(t, listed.Connections)
}

func TestManageOwnExtendsToDescendantOrganizations(t *testing.T) {
	f := newConnectionFixture(t)

	child := createTestOrg(t, f.db, "org-one-child", &f.orgOne.ID)
	childNode := createTestNode(t, f.db, child.ID, "node-child", models.NodeExternal)

	// The parent organization's administrator manages connections for
	// nodes owned anywhere in its subtree.
	dto, err := f.svc.CreateInvitation(context.Background(), f.accessOne, CreateInvitationInput{
		FromNodeID:   childNode.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.NoError(t, err)
	require.Equal(t, models.ConnectionPending, dto.Status)

	// Access does not reach upward from a child to the parent's nodes.
	childAccess := accessFor(child.ID, models.RoleAdministrator, policies.ConnectionsManageOwn)
	_, err = f.svc.CreateInvitation(context.Background(), childAccess, CreateInvitationInput{
		FromNodeID:   f.nodeOne.ID,
		TargetNodeID: f.nodeTwo.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Nor sideways between unrelated subtrees.
	_, err = f.svc.CreateInvitation(context.Background(), f.accessTwo, CreateInvitationInput{
		FromNodeID:   childNode.ID,
		TargetNodeID: f.nodeOne.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAcceptInvitationDecodeFailureLeavesInvitationPending(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aes, err := crypto.NewAESCodec(key)
	require.NoError(t, err)

	// Same store, mismatched codec: the stored secret cannot be decoded.
	mismatched, err := NewNodeConnectionService(f.db, aes, f.orgSvc, nil)
	require.NoError(t, err)

	_, err = mismatched.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.Error(t, err)

	var stored models.NodeConnection
	require.NoError(t, f.db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, models.ConnectionPending, stored.Status)

	// Once the codec matches again the invitation is still acceptable.
	creds, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)
	require.NotEmpty(t, creds.ClientSecret)
}

func TestGetCredentialsRefusesExpiredConnections(t *testing.T) {
	f := newConnectionFixture(t)
	dto := f.invite(t)
	_, err := f.svc.AcceptInvitation(context.Background(), f.accessTwo, dto.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.NodeConnection{}).
		Where("id = ?", dto.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = f.svc.GetCredentials(context.Background(), f.accessOne, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	// Rotation is the recovery path and restores retrieval.
	_, err = f.svc.RotateCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)

	creds, err := f.svc.GetCredentials(context.Background(), f.accessOne, dto.ID)
	require.NoError(t, err)
	require.NotEmpty(t, creds.ClientSecret)
}
