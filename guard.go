/*
Copyright 2025 Magmad Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package magmad

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/database"
	"github.com/hodlmetight/magmad/model"
)

// ErrPipelineHalted is returned when a tick is refused because the halt flag
// is set. The flag only goes away through an explicit operator clear.
var ErrPipelineHalted = errors.New("pipeline halted by previous fatal error")

// Guard is the containment gate in front of every pipeline tick. A fatal
// error trips it; once tripped, the pipeline refuses to run until an operator
// has investigated and cleared the flag.
type Guard struct {
	datasource database.IDataSource
}

func NewGuard(db database.IDataSource) *Guard {
	return &Guard{datasource: db}
}

// Check returns the halt flag when set, nil when the pipeline may run.
func (g *Guard) Check(ctx context.Context) (*model.HaltFlag, error) {
	return g.datasource.GetHaltFlag(ctx)
}

// Trip persists the halt flag. When the flag is already set the stored reason
// is kept, so repeated failures never mask the first one.
func (g *Guard) Trip(ctx context.Context, reason string) error {
	logrus.Errorf("tripping pipeline guard: %s", reason)
	return g.datasource.SetHaltFlag(ctx, reason)
}

// Clear removes the halt flag. Only the admin command calls this; the
// pipeline itself never clears its own guard.
func (g *Guard) Clear(ctx context.Context) error {
	return g.datasource.ClearHaltFlag(ctx)
}
