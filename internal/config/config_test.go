/*
Copyright 2025 Jordi Gil.

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

package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  admin_port: "8090"

llm:
  provider: "anthropic"
  base_url: "https://api.anthropic.com"
  model: "claude-sonnet"
  timeout: "30s"
  max_model_len: 8192
  output_reserve: 1024
  safety_margin: 256

asset_service:
  url: "http://asset-service.internal"
  cache_ttl: "1h"
  cache_size: 256

catalog:
  source: "filesystem"
  corpus_dir: "/etc/pipeline-core/tools"

pipeline:
  confidence_threshold: 0.5
  max_clarification_attempts: 3

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
				Expect(cfg.LLM.Provider).To(Equal("anthropic"))
				Expect(cfg.LLM.Model).To(Equal("claude-sonnet"))
				Expect(cfg.Catalog.Source).To(Equal("filesystem"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimal := `
llm:
  provider: "anthropic"
  model: "claude-sonnet"

catalog:
  source: "filesystem"
`
				err := os.WriteFile(configFile, []byte(minimal), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Pipeline.ConfidenceThreshold).To(Equal(0.5))
				Expect(cfg.Pipeline.MaxClarificationAttempts).To(Equal(3))
				Expect(cfg.Conversation.MaxMessages).To(Equal(20))
				Expect(cfg.AssetService.CacheSize).To(Equal(256))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				err := os.WriteFile(configFile, []byte("not: [valid yaml"), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when llm provider is invalid", func() {
			BeforeEach(func() {
				invalid := `
llm:
  provider: "ollama"
  model: "llama2"
catalog:
  source: "filesystem"
`
				err := os.WriteFile(configFile, []byte(invalid), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return validation error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when catalog source is invalid", func() {
			BeforeEach(func() {
				invalid := `
llm:
  provider: "anthropic"
  model: "claude-sonnet"
catalog:
  source: "nfs"
`
				err := os.WriteFile(configFile, []byte(invalid), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return validation error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		BeforeEach(func() {
			minimal := `
llm:
  provider: "anthropic"
  model: "claude-sonnet"
catalog:
  source: "filesystem"
`
			err := os.WriteFile(configFile, []byte(minimal), 0644)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.Unsetenv("LLM_MODEL")
			os.Unsetenv("CONFIDENCE_THRESHOLD")
		})

		It("should override values from environment", func() {
			os.Setenv("LLM_MODEL", "claude-opus")
			os.Setenv("CONFIDENCE_THRESHOLD", "0.75")

			cfg, err := Load(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.Model).To(Equal("claude-opus"))
			Expect(cfg.Pipeline.ConfidenceThreshold).To(Equal(0.75))
		})
	})
})
