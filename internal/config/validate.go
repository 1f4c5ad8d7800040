package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if c.Engine.Learn.MinLearningRate > c.Engine.Learn.LearningRate {
		return fmt.Errorf("config: engine.learn.min_learning_rate %.4g exceeds learning_rate %.4g",
			c.Engine.Learn.MinLearningRate, c.Engine.Learn.LearningRate)
	}
	if c.BFF.Port == c.Server.Port {
		return fmt.Errorf("config: bff.port and server.port are both %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateSections(sections ...any) error {
	for _, sec := range sections {
		if err := validateStruct(sec); err != nil {
			return err
		}
	}
	return nil
}

func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("config: invalid: %w", err)
}
