// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest exposes transform runs over HTTP. One run executes at a time;
// clients start it with a POST and poll its progress.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/zmadru/SatChange/internal/engine"
	"github.com/zmadru/SatChange/internal/progress"
	"github.com/zmadru/SatChange/internal/transform"
	"github.com/zmadru/SatChange/web"
)

type Server struct {
	ctx *engine.Context

	mutex   sync.Mutex
	running bool
	outputs *engine.Outputs // of the last successful run
	wg      sync.WaitGroup
}

func NewServer(c *engine.Context) *Server {
	return &Server{ctx: c}
}

// Builds the router with all API routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.ctx.Log), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/transforms", getTransforms)
			v1.GET("/progress", s.getProgress)
			v1.POST("/run", s.postRun)
		}
	}
	r.GET("/", getIndex)
	r.GET("/metrics", gin.WrapH(s.ctx.Metrics.Handler()))
	return r
}

// Listens and serves on addr, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	fmt.Fprintf(s.ctx.Log, "Listening on %s\n", addr)
	return s.Router().Run(addr)
}

// Blocks until the current run, if any, has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Lists the registered transforms with their default parameters
func getTransforms(c *gin.Context) {
	defaults := map[string]transform.Transform{}
	for _, t := range transform.Types() {
		tr, err := transform.New(t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defaults[t] = tr
	}
	c.JSON(http.StatusOK, defaults)
}

type progressReply struct {
	Phase      string          `json:"phase"`
	Progress   int             `json:"progress"`
	OutputPath string          `json:"outputPath"`
	Error      string          `json:"error,omitempty"`
	Outputs    *engine.Outputs `json:"outputs,omitempty"`
}

// Reports the tracker state. A registered run is never reported finished before
// the server has released it, so done or error always means a new run can start
func (s *Server) getProgress(c *gin.Context) {
	s.mutex.Lock()
	snap := s.ctx.Progress.Snapshot()
	running, outs := s.running, s.outputs
	s.mutex.Unlock()
	if running && !snap.Phase.Active() {
		if snap.Phase == progress.Idle {
			snap.Phase = progress.Loading
		} else {
			snap.Phase = progress.Saving
		}
		snap.OutputPath, snap.Error = "", ""
	}
	c.JSON(http.StatusOK, progressReply{
		Phase:      snap.Phase.String(),
		Progress:   snap.Progress,
		OutputPath: snap.OutputPath,
		Error:      snap.Error,
		Outputs:    outs,
	})
}

type postRunArgs struct {
	FileName  string          `json:"fileName" binding:"required"`
	Transform json.RawMessage `json:"transform" binding:"required"`
}

// Starts a run in the background. Replies 202 once started, 409 while another run is active
func (s *Server) postRun(c *gin.Context) {
	var args postRunArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := transform.Unmarshal(args.Transform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}
	s.running, s.outputs = true, nil
	s.ctx.Progress.Reset()
	s.wg.Add(1)
	s.mutex.Unlock()

	go func() {
		defer s.wg.Done()
		outs, err := engine.Run(context.Background(), s.ctx, args.FileName, t)
		if err != nil {
			fmt.Fprintf(s.ctx.Log, "Error: %s\n", err.Error())
		}
		s.mutex.Lock()
		s.running, s.outputs = false, outs
		s.mutex.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "type": t.GetType(), "fileName": args.FileName})
}
