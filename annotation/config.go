package annotation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lewtec/anotador/internal/domain"
)

type Config struct {
	Meta struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"meta"`
	Authentication map[string]*ConfigAuth `yaml:"auth"`
	Tasks          []*ConfigTask          `yaml:"tasks"`
	MediaDir       string                 `yaml:"media_dir"`
	Database       string                 `yaml:"database"`
	FrameSkip      int                    `yaml:"frame_skip"`
	Prediction     ConfigPrediction       `yaml:"prediction"`
	TimelineTTL    time.Duration          `yaml:"timeline_ttl"`
}

type ConfigAuth struct {
	Password string `yaml:"password"`
}

type ConfigTask struct {
	ID     string         `yaml:"id"`
	Title  string         `yaml:"title"`
	Domain string         `yaml:"domain"`
	Labels []*ConfigLabel `yaml:"labels"`
}

type ConfigLabel struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Color       string   `yaml:"color"`
	Group       string   `yaml:"group"`
	Parent      string   `yaml:"parent"`
	Behaviour   []string `yaml:"behaviour"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples"`
}

type ConfigPrediction struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold float64       `yaml:"threshold"`
}

const (
	DefaultDatabase    = "annotations.db"
	DefaultTimelineTTL = 10 * time.Minute
	DefaultTimeout     = 30 * time.Second
)

var behaviours = map[string]domain.LabelBehaviour{
	"exclusive": domain.BehaviourExclusive,
	"empty":     domain.BehaviourExclusive,
	"anomalous": domain.BehaviourAnomalous,
	"global":    domain.BehaviourGlobal,
}

func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a project file, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var ret Config
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	ret.applyDefaults()
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Config) applyDefaults() {
	if c.Meta.Name == "" {
		c.Meta.Name = "anotador"
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.FrameSkip <= 0 {
		c.FrameSkip = 1
	}
	if c.TimelineTTL <= 0 {
		c.TimelineTTL = DefaultTimelineTTL
	}
	if c.Prediction.Timeout <= 0 {
		c.Prediction.Timeout = DefaultTimeout
	}
	for i, task := range c.Tasks {
		if task == nil {
			continue
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", i)
		}
		if task.Domain == "" {
			task.Domain = string(domain.DomainClassification)
		}
		if task.Title == "" {
			task.Title = task.ID
		}
		for _, label := range task.Labels {
			if label == nil {
				continue
			}
			if label.Name == "" {
				label.Name = label.ID
			}
			// labels of a task share a group unless told otherwise
			if label.Group == "" {
				label.Group = task.ID
			}
		}
	}
}

// Validate rejects configs the annotation core cannot work with
func (c *Config) Validate() error {
	if len(c.Tasks) == 0 {
		return fmt.Errorf("no tasks specified")
	}
	taskIDs := map[string]bool{}
	labelIDs := map[string]bool{}
	for i, task := range c.Tasks {
		if task == nil {
			return fmt.Errorf("task %d is empty", i)
		}
		if taskIDs[task.ID] {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		taskIDs[task.ID] = true
		if !domain.Domain(task.Domain).Valid() {
			return fmt.Errorf("task %s has unknown domain %q", task.ID, task.Domain)
		}
		if len(task.Labels) == 0 {
			return fmt.Errorf("task %s does not have any labels", task.ID)
		}
		for _, label := range task.Labels {
			if label == nil || label.ID == "" {
				return fmt.Errorf("task %s has a label without id", task.ID)
			}
			if labelIDs[label.ID] {
				return fmt.Errorf("duplicate label id %s", label.ID)
			}
			labelIDs[label.ID] = true
			for _, behaviour := range label.Behaviour {
				if _, ok := behaviours[strings.ToLower(behaviour)]; !ok {
					return fmt.Errorf("label %s has unknown behaviour %q", label.ID, behaviour)
				}
			}
		}
	}
	for _, task := range c.Tasks {
		for _, label := range task.Labels {
			if label.Parent != "" && !labelIDs[label.Parent] {
				return fmt.Errorf("label %s has unknown parent %s", label.ID, label.Parent)
			}
		}
	}
	if len(c.Authentication) == 0 {
		return fmt.Errorf("no users specified")
	}
	for user := range c.Authentication {
		if c.Authentication[user] == nil || c.Authentication[user].Password == "" {
			return fmt.Errorf("user %s has a null password", user)
		}
	}
	if c.Prediction.Threshold < 0 || c.Prediction.Threshold > 1 {
		return fmt.Errorf("prediction threshold must be within [0, 1], got %v", c.Prediction.Threshold)
	}
	return nil
}

func (l *ConfigLabel) label() domain.Label {
	var behaviour domain.LabelBehaviour
	for _, name := range l.Behaviour {
		behaviour |= behaviours[strings.ToLower(name)]
	}
	return domain.Label{
		ID:        l.ID,
		Name:      l.Name,
		Color:     l.Color,
		Group:     l.Group,
		ParentID:  l.Parent,
		Behaviour: behaviour,
	}
}

// Project converts the configured tasks to the domain project
func (c *Config) Project() domain.Project {
	project := domain.Project{ID: c.Meta.Name, Name: c.Meta.Name}
	for _, task := range c.Tasks {
		t := domain.Task{ID: task.ID, Title: task.Title, Domain: domain.Domain(task.Domain)}
		for _, label := range task.Labels {
			t.Labels = append(t.Labels, label.label())
		}
		project.Tasks = append(project.Tasks, t)
	}
	return project
}

// GetTask returns the task with taskID, or nil
func (c *Config) GetTask(taskID string) *ConfigTask {
	for _, task := range c.Tasks {
		if task.ID == taskID {
			return task
		}
	}
	return nil
}

// SampleConfig returns a detection to classification project for mediaDir
func SampleConfig(mediaDir string) string {
	return fmt.Sprintf(`meta:
  name: sample
  description: "Sample annotation project. Draw a box around every vehicle, then classify it."
auth:
  admin: { password: "changeme" }
  annotator: { password: "changeme" }
media_dir: %q
database: %q
frame_skip: 1
timeline_ttl: 10m
prediction:
  url: ""
  timeout: 30s
  threshold: 0.5
tasks:
  - id: detection
    title: "Vehicle detection"
    domain: detection
    labels:
      - { id: vehicle, name: "Vehicle", color: "#edb200" }
  - id: classification
    title: "Vehicle type"
    domain: classification
    labels:
      - { id: car, name: "Car", color: "#548fad", parent: vehicle }
      - { id: truck, name: "Truck", color: "#9d3b1a", parent: vehicle }
      - { id: other, name: "Other", color: "#7a7a7a", parent: vehicle, behaviour: [exclusive] }
`, mediaDir, DefaultDatabase)
}
