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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hodlmetight/magmad/config"
)

func TestNewSchedulerReadsInterval(t *testing.T) {
	f := newPipelineFixture()
	config.MockConfig(&config.Configuration{
		Pipeline: config.PipelineConfig{PollingIntervalMinutes: 5},
	})

	s, err := NewScheduler(f.magmad)
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.interval)
}

func TestTriggerNowCoalesces(t *testing.T) {
	f := newPipelineFixture()

	s, err := NewScheduler(f.magmad)
	assert.NoError(t, err)

	// any number of trigger requests fold into a single pending tick
	s.TriggerNow()
	s.TriggerNow()
	s.TriggerNow()
	assert.Len(t, s.trigger, 1)

	<-s.trigger
	assert.Len(t, s.trigger, 0)

	s.TriggerNow()
	assert.Len(t, s.trigger, 1)
}
