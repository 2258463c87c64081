package recorder

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS flights (
    id         TEXT PRIMARY KEY,
    device_id  TEXT NOT NULL,
    endpoint   TEXT,
    started_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS telemetry (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    flight_id         TEXT NOT NULL REFERENCES flights (id),
    timestamp         TIMESTAMP NOT NULL,
    latitude          REAL,
    longitude         REAL,
    altitude          REAL,
    relative_altitude REAL,
    heading           REAL,
    roll              REAL,
    pitch             REAL,
    yaw               REAL,
    groundspeed       REAL,
    airspeed          REAL,
    battery_voltage   REAL,
    battery_level     INTEGER,
    armed             BOOLEAN NOT NULL,
    flight_mode       TEXT,
    gps_fix           INTEGER,
    satellites        INTEGER
);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    flight_id   TEXT NOT NULL REFERENCES flights (id),
    sequence    TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    stage       TEXT NOT NULL,
    error       TEXT,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telemetry_flight ON telemetry (flight_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_flight ON events (flight_id);`

	insertFlightSQL = `
INSERT INTO flights (id, device_id, endpoint, started_at)
VALUES (?, ?, ?, ?)`

	selectFlightsSQL = `
SELECT
    id,
    device_id,
    endpoint,
    started_at
FROM flights
ORDER BY started_at`

	insertTelemetrySQL = `
INSERT INTO telemetry (flight_id,
                       timestamp,
                       latitude,
                       longitude,
                       altitude,
                       relative_altitude,
                       heading,
                       roll,
                       pitch,
                       yaw,
                       groundspeed,
                       airspeed,
                       battery_voltage,
                       battery_level,
                       armed,
                       flight_mode,
                       gps_fix,
                       satellites)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectTelemetrySQL = `
SELECT
    timestamp,
    latitude,
    longitude,
    relative_altitude,
    heading,
    armed,
    flight_mode
FROM telemetry
WHERE
    flight_id = ?
ORDER BY id`

	insertEventSQL = `
INSERT INTO events (flight_id,
                    sequence,
                    success,
                    stage,
                    error,
                    started_at,
                    finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectEventsSQL = `
SELECT
    sequence,
    success,
    stage,
    error,
    started_at,
    finished_at
FROM events
WHERE
    flight_id = ?
ORDER BY id`
)
