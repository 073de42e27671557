//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=mocks/mock_directory.go -package=mocks
package signaling

// Directory answers whether an identity is connected and what it is called.
// Registry implements it for the coordinator.
type Directory interface {
	DisplayName(identity string) (string, bool)
}
