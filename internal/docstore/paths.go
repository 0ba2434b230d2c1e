package docstore

import (
	"path"
	"strings"
)

// Paths builds the logical document paths for one deployment namespace.
type Paths struct {
	DeploymentID string
}

func NewPaths(deploymentID string) Paths {
	return Paths{DeploymentID: deploymentID}
}

func (p Paths) root() string {
	return path.Join("artifacts", p.DeploymentID)
}

// Profile is the per-user profile document.
func (p Paths) Profile(userID string) string {
	return path.Join(p.root(), "users", userID, "profile", "main")
}

// Families is the collection holding every family record.
func (p Paths) Families() string {
	return path.Join(p.root(), "public", "data", "families")
}

func (p Paths) Family(familyID string) string {
	return path.Join(p.Families(), familyID)
}

// Items is the single global collection of family items.
func (p Paths) Items() string {
	return path.Join(p.root(), "public", "data", "family_items")
}

func (p Paths) Item(itemID string) string {
	return path.Join(p.Items(), itemID)
}

// Split returns the parent collection and the id of a document path.
func Split(docPath string) (collection, id string) {
	i := strings.LastIndex(docPath, "/")
	if i < 0 {
		return "", docPath
	}
	return docPath[:i], docPath[i+1:]
}
