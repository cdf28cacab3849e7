package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
)

func TestNodeCreateExternal(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)

	dto, err := svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name:   "warehouse",
		Type:   models.NodeExternal,
		APIURL: "https://warehouse.acme.example.com/api",
	})
	require.NoError(t, err)
	require.Equal(t, models.NodeExternal, dto.Type)
	require.Equal(t, "https://warehouse.acme.example.com/api", dto.APIURL)
	require.Equal(t, models.NodePending, dto.Status)
	require.Equal(t, "acme", dto.OrganizationName)

	// External nodes must bring their own endpoint.
	_, err = svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name: "no-url",
		Type: models.NodeExternal,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestNodeCreateInternalDerivesAPIURL(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com/")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)

	dto, err := svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name: "hub",
		Type: models.NodeInternal,
	})
	require.NoError(t, err)

	// The generated URL embeds the id that was assigned at insert time.
	require.Equal(t, "https://directory.example.com/api/nodes/"+dto.ID, dto.APIURL)

	var stored models.Node
	require.NoError(t, db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, dto.APIURL, stored.APIURL)
}

func TestNodeCreateValidation(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)

	_, err = svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name: "  ",
		Type: models.NodeInternal,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name: "bad-type",
		Type: models.NodeType("satellite"),
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	otherAccess := accessFor(createTestOrg(t, db, "other", nil).ID,
		models.RoleAdministrator, policies.NodesManageOwn)
	_, err = svc.Create(context.Background(), otherAccess, org.ID, CreateNodeInput{
		Name: "hub",
		Type: models.NodeInternal,
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestNodeUpdate(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)
	node := createTestNode(t, db, org.ID, "warehouse", models.NodeExternal)

	name := "warehouse-east"
	apiURL := "https://east.acme.example.com/api"
	status := models.NodeActive
	dto, err := svc.Update(context.Background(), access, node.ID, UpdateNodeInput{
		Name:   &name,
		APIURL: &apiURL,
		Status: &status,
	})
	require.NoError(t, err)
	require.Equal(t, name, dto.Name)
	require.Equal(t, apiURL, dto.APIURL)
	require.Equal(t, models.NodeActive, dto.Status)
}

func TestInternalNodeAPIURLIsImmutable(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)

	dto, err := svc.Create(context.Background(), access, org.ID, CreateNodeInput{
		Name: "hub",
		Type: models.NodeInternal,
	})
	require.NoError(t, err)

	intruding := "https://elsewhere.example.com"
	_, err = svc.Update(context.Background(), access, dto.ID, UpdateNodeInput{APIURL: &intruding})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.True(t, strings.Contains(err.Error(), "internal node"))

	// Name changes remain allowed.
	name := "hub-renamed"
	updated, err := svc.Update(context.Background(), access, dto.ID, UpdateNodeInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, dto.APIURL, updated.APIURL)
}

func TestNodeDeleteDeactivates(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)
	node := createTestNode(t, db, org.ID, "warehouse", models.NodeExternal)

	require.NoError(t, svc.Delete(context.Background(), access, node.ID))

	// The row survives with inactive status.
	var stored models.Node
	require.NoError(t, db.First(&stored, "id = ?", node.ID).Error)
	require.Equal(t, models.NodeInactive, stored.Status)
}

func TestNodeListFiltersAndPagination(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	other := createTestOrg(t, db, "other", nil)
	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)

	createTestNode(t, db, org.ID, "alpha", models.NodeExternal)
	createTestNode(t, db, org.ID, "beta", models.NodeExternal)
	createTestNode(t, db, org.ID, "gamma", models.NodeInternal)
	createTestNode(t, db, other.ID, "delta", models.NodeExternal)

	out, err := svc.List(context.Background(), access, org.ID, ListQuery{})
	require.NoError(t, err)
	require.Len(t, out.Nodes, 3)
	require.Equal(t, int64(3), out.Pagination.Total)

	out, err = svc.List(context.Background(), access, org.ID, ListQuery{
		Filters: map[string]string{"type": string(models.NodeInternal)},
	})
	require.NoError(t, err)
	require.Len(t, out.Nodes, 1)
	require.Equal(t, "gamma", out.Nodes[0].Name)

	out, err = svc.List(context.Background(), access, org.ID, ListQuery{Search: "ALP"})
	require.NoError(t, err)
	require.Len(t, out.Nodes, 1)
	require.Equal(t, "alpha", out.Nodes[0].Name)

	out, err = svc.List(context.Background(), access, org.ID, ListQuery{Limit: 2, SortBy: "name", SortOrder: SortAsc})
	require.NoError(t, err)
	require.Len(t, out.Nodes, 2)
	require.Equal(t, "alpha", out.Nodes[0].Name)
	require.True(t, out.Pagination.HasNext)

	// Another organization's list is off limits with own-only access.
	_, err = svc.List(context.Background(), access, other.ID, ListQuery{})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestNodeListAllRequiresAllPolicy(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	other := createTestOrg(t, db, "other", nil)
	createTestNode(t, db, org.ID, "alpha", models.NodeExternal)
	createTestNode(t, db, other.ID, "delta", models.NodeExternal)

	own := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)
	_, err = svc.ListAll(context.Background(), own, ListQuery{})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	all := accessFor(org.ID, models.RoleRoot, policies.NodesManageAll)
	out, err := svc.ListAll(context.Background(), all, ListQuery{})
	require.NoError(t, err)
	require.Len(t, out.Nodes, 2)
}

func TestNodeGet(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewNodeService(db, "https://directory.example.com")
	require.NoError(t, err)

	org := createTestOrg(t, db, "acme", nil)
	node := createTestNode(t, db, org.ID, "warehouse", models.NodeExternal)

	access := accessFor(org.ID, models.RoleAdministrator, policies.NodesManageOwn)
	dto, err := svc.Get(context.Background(), access, node.ID)
	require.NoError(t, err)
	require.Equal(t, node.ID, dto.ID)

	_, err = svc.Get(context.Background(), access, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	outsider := accessFor(createTestOrg(t, db, "other", nil).ID,
		models.RoleAdministrator, policies.NodesManageOwn)
	_, err = svc.Get(context.Background(), outsider, node.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}
