package analyzer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDeclarations(t *testing.T) {
	src := `package main

func main() {}
func (s *Server) Start(ctx context.Context) error {
type Config struct {
export async function fetchUser(id) {
    def _private(self):
public class UserService {
pub fn parse_args() -> Args {
interface Reader {
func (broken
// func commented
`
	want := []Declaration{
		{Kind: KindFunction, Name: "main", Line: 3},
		{Kind: KindFunction, Name: "Start", Line: 4},
		{Kind: KindType, Name: "Config", Line: 5},
		{Kind: KindFunction, Name: "fetchUser", Line: 6},
		{Kind: KindFunction, Name: "_private", Line: 7},
		{Kind: KindClass, Name: "UserService", Line: 8},
		{Kind: KindFunction, Name: "parse_args", Line: 9},
		{Kind: KindType, Name: "Reader", Line: 10},
	}
	if diff := cmp.Diff(want, Declarations(src)); diff != "" {
		t.Errorf("Declarations() mismatch (-want +got):\n%s", diff)
	}
}

func TestFileKinds(t *testing.T) {
	assert.True(t, IsCode("pkg/server.go"))
	assert.True(t, IsCode("App.TSX"))
	assert.False(t, IsCode("README.md"))
	assert.True(t, IsConfig("deploy/values.yaml"))
	assert.True(t, IsConfig(".env"))
	assert.True(t, IsConfig("config/.env.local"))
	assert.False(t, IsConfig("main.go"))
}
