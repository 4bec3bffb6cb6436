// Package mcpadapter exposes the policy index as MCP tools over stdio.
package mcpadapter

import (
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/policy-radar/internal/core/ports"
)

const (
	serverName    = "policy-radar"
	serverVersion = "0.1.0"
)

var ErrMissingService = errors.New("mcp: query service and index manager are required")

type Server struct {
	query ports.QueryService
	index ports.IndexManager
	mcp   *server.MCPServer
}

func NewServer(query ports.QueryService, index ports.IndexManager) (*Server, error) {
	if query == nil || index == nil {
		return nil, ErrMissingService
	}
	s := &Server{
		query: query,
		index: index,
		mcp:   server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// ServeStdio blocks until stdin is closed or the process receives a signal.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
