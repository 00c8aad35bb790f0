package main

// General API documentation for swaggo. Run `make swagger-gen` to regenerate docs.
//
// @title           llmgate API
// @version         1.0
// @description     Streaming HTTP and WebSocket gateway in front of a local llama.cpp server.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
